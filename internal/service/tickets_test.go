package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/model"
)

func openTicket(t *testing.T, svc *TicketService, companyID string) *model.SupportTicket {
	t.Helper()
	tk, err := svc.OpenTicket(context.Background(), companyID, "usr_1", TicketInput{
		Subject:  "Invoice is wrong",
		Body:     "We were charged twice.",
		Category: model.TicketBilling,
	})
	require.NoError(t, err)
	return tk
}

func TestTicketService_OpenTicket(t *testing.T) {
	svc := NewTicketService(newMemStore(), discardLogger())

	tk := openTicket(t, svc, "co_1")
	assert.Equal(t, model.TicketOpen, tk.Status)
	assert.Equal(t, model.PriorityNormal, tk.Priority)
	assert.Equal(t, model.TicketBilling, tk.Category)

	testCases := []struct {
		name string
		in   TicketInput
	}{
		{"missing subject", TicketInput{Body: "x"}},
		{"long subject", TicketInput{Subject: strings.Repeat("s", maxTicketSubject+1), Body: "x"}},
		{"bad category", TicketInput{Subject: "s", Body: "x", Category: "sales"}},
		{"bad priority", TicketInput{Subject: "s", Body: "x", Priority: "whenever"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.OpenTicket(context.Background(), "co_1", "usr_1", tc.in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestTicketService_Conversation(t *testing.T) {
	svc := NewTicketService(newMemStore(), discardLogger())
	ctx := context.Background()
	tk := openTicket(t, svc, "co_1")

	_, err := svc.StaffReply(ctx, tk.ID, "usr_staff", "Refund issued, can you confirm?")
	require.NoError(t, err)
	got, err := svc.GetTicket(ctx, "co_1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketPending, got.Status, "staff reply waits on the customer")

	_, err = svc.Reply(ctx, "co_1", tk.ID, "usr_1", "Confirmed, thanks")
	require.NoError(t, err)
	got, err = svc.GetTicket(ctx, "co_1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOpen, got.Status, "a tenant reply reopens the ticket")
	require.Len(t, got.Messages, 2)
	assert.True(t, got.Messages[0].Staff)
	assert.False(t, got.Messages[1].Staff)

	closed, err := svc.CloseTicket(ctx, "co_1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketClosed, closed.Status)
	assert.NotNil(t, closed.ResolvedAt)

	_, err = svc.Reply(ctx, "co_1", tk.ID, "usr_1", "One more thing")
	require.ErrorIs(t, err, ErrTicketClosed)
	_, err = svc.CloseTicket(ctx, "co_1", tk.ID)
	require.ErrorIs(t, err, ErrTicketClosed)
}

func TestTicketService_TenantIsolation(t *testing.T) {
	svc := NewTicketService(newMemStore(), discardLogger())
	ctx := context.Background()
	tk := openTicket(t, svc, "co_1")

	_, err := svc.GetTicket(ctx, "co_2", tk.ID)
	require.ErrorIs(t, err, ErrTicketNotFound)
	_, err = svc.Reply(ctx, "co_2", tk.ID, "usr_2", "hello")
	require.ErrorIs(t, err, ErrTicketNotFound)

	// Staff see every tenant.
	_, err = svc.GetTicket(ctx, "", tk.ID)
	require.NoError(t, err)
}

func TestTicketService_StaffWorkflow(t *testing.T) {
	svc := NewTicketService(newMemStore(), discardLogger())
	ctx := context.Background()
	a := openTicket(t, svc, "co_1")
	openTicket(t, svc, "co_2")

	all, _, err := svc.ListTickets(ctx, "", model.TicketOpen, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, _, err := svc.ListTickets(ctx, "co_1", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	assigned, err := svc.Assign(ctx, a.ID, "usr_staff")
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, "usr_staff", *assigned.AssigneeID)

	unassigned, err := svc.Assign(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssigneeID)

	urgent, err := svc.SetPriority(ctx, a.ID, model.PriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityUrgent, urgent.Priority)
	_, err = svc.SetPriority(ctx, a.ID, "asap")
	require.ErrorIs(t, err, ErrInvalidInput)

	resolved, err := svc.SetStatus(ctx, a.ID, model.TicketResolved)
	require.NoError(t, err)
	assert.NotNil(t, resolved.ResolvedAt)

	reopened, err := svc.SetStatus(ctx, a.ID, model.TicketOpen)
	require.NoError(t, err)
	assert.Nil(t, reopened.ResolvedAt)

	_, err = svc.SetStatus(ctx, "tkt_missing", model.TicketClosed)
	require.ErrorIs(t, err, ErrTicketNotFound)
}
