package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/internal/billing"
)

func TestSignPayload_Verifies(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	header, err := signPayload("whsec_test", body, 0, time.Now())
	if err != nil {
		t.Fatalf("signPayload() error = %v", err)
	}
	if err := billing.VerifySignature("whsec_test", header, body, 5*time.Minute); err != nil {
		t.Errorf("VerifySignature() error = %v", err)
	}
}

func TestSignPayload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		body   []byte
	}{
		{"missing secret", "", []byte("{}")},
		{"empty body", "whsec_test", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := signPayload(tt.secret, tt.body, 0, time.Now()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSignPayload_FixedTimestamp(t *testing.T) {
	header, err := signPayload("s", []byte("{}"), 1700000000, time.Now())
	if err != nil {
		t.Fatalf("signPayload() error = %v", err)
	}
	if !strings.HasPrefix(header, "t=1700000000,v1=") {
		t.Errorf("header = %q", header)
	}
}

func TestSignCommand_ReadsStdin(t *testing.T) {
	root := &cobra.Command{Use: "hireloopctl"}
	InitSignCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(`{"id":"evt_2"}`))
	root.SetArgs([]string{"sign-payload", "--secret", "whsec_test", "--timestamp", "1700000000"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := billing.SignPayload("whsec_test", []byte(`{"id":"evt_2"}`), time.Unix(1700000000, 0))
	if got := strings.TrimSpace(out.String()); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestAdminInput(t *testing.T) {
	in, err := adminInput("EXTEND_TRIAL", 7, "", "", "sales call")
	if err != nil {
		t.Fatalf("adminInput() error = %v", err)
	}
	if in.Kind != billing.ActionExtendTrial || in.Days != 7 || in.ActorID != "hireloopctl" {
		t.Errorf("unexpected input: %+v", in)
	}

	in, err = adminInput("activate", 0, "growth", "2026-12-01T00:00:00+02:00", "")
	if err != nil {
		t.Fatalf("adminInput() error = %v", err)
	}
	if in.PeriodEnd == nil || !in.PeriodEnd.Equal(time.Date(2026, 11, 30, 22, 0, 0, 0, time.UTC)) {
		t.Errorf("period end = %v", in.PeriodEnd)
	}

	if _, err := adminInput("activate", 0, "", "next tuesday", ""); err == nil {
		t.Error("expected error for bad --period-end")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" ai_scoring, ,calendar,")
	if len(got) != 2 || got[0] != "ai_scoring" || got[1] != "calendar" {
		t.Errorf("splitList() = %v", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

func TestCommandTree(t *testing.T) {
	root := &cobra.Command{Use: "hireloopctl"}
	InitPlanCommands(root)
	InitSubscriptionCommands(root)
	InitOpsCommands(root)
	InitSignCommands(root)

	for _, path := range [][]string{
		{"plans", "list"},
		{"plans", "create"},
		{"subscription", "show"},
		{"subscription", "apply"},
		{"sweep"},
		{"migrate"},
		{"bootstrap-admin"},
		{"sign-payload"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not registered", path)
		}
	}
}
