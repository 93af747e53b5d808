package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/service"
)

// InitSubscriptionCommands registers the subscription command group.
func InitSubscriptionCommands(rootCmd *cobra.Command) {
	subCmd := &cobra.Command{
		Use:   "subscription",
		Short: "Inspect and override company subscriptions",
	}

	showCmd := &cobra.Command{
		Use:   "show <company-id>",
		Short: "Show a company's subscription, plan and entitlements",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
			view, err := rt.billing.GetSubscription(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, view)
		}),
	}

	var (
		days      int
		planCode  string
		periodEnd string
		reason    string
	)
	applyCmd := &cobra.Command{
		Use:   "apply <company-id> <action>",
		Short: "Apply a staff override",
		Long: fmt.Sprintf(`Apply a staff override to a company's subscription.

Actions: %s`, actionList()),
		Args: cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
			in, err := adminInput(args[1], days, planCode, periodEnd, reason)
			if err != nil {
				return err
			}
			view, err := rt.billing.ApplyAdminAction(ctx, args[0], in)
			if err != nil {
				return err
			}
			return printJSON(out, view)
		}),
	}
	f := applyCmd.Flags()
	f.IntVar(&days, "days", 0, "Days to add (extend_trial, grant_grace)")
	f.StringVar(&planCode, "plan", "", "Plan code (assign_plan, activate)")
	f.StringVar(&periodEnd, "period-end", "", "RFC 3339 period end (activate)")
	f.StringVar(&reason, "reason", "", "Reason recorded in the subscription history")

	subCmd.AddCommand(showCmd, applyCmd)
	rootCmd.AddCommand(subCmd)
}

// adminInput builds the override from command arguments. The action itself
// is validated by the billing service.
func adminInput(kind string, days int, planCode, periodEnd, reason string) (service.AdminActionInput, error) {
	in := service.AdminActionInput{
		Kind:     billing.AdminActionKind(strings.ToLower(kind)),
		Days:     days,
		PlanCode: planCode,
		Reason:   reason,
		ActorID:  "hireloopctl",
	}
	if periodEnd != "" {
		t, err := time.Parse(time.RFC3339, periodEnd)
		if err != nil {
			return in, fmt.Errorf("invalid --period-end: %w", err)
		}
		t = t.UTC()
		in.PeriodEnd = &t
	}
	return in, nil
}

func actionList() string {
	names := make([]string, 0, len(billing.ValidAdminActions))
	for _, a := range billing.ValidAdminActions {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}
