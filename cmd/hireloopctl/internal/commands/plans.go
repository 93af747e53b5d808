package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/internal/service"
)

// InitPlanCommands registers the plans command group.
func InitPlanCommands(rootCmd *cobra.Command) {
	plansCmd := &cobra.Command{
		Use:   "plans",
		Short: "List and create subscription plans",
	}

	var jsonOut bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every plan, including inactive and custom ones",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, rt *runtime, _ []string, out io.Writer) error {
			plans, err := rt.billing.ListAllPlans(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(out, plans)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tPRICE\tJOBS\tSEATS\tAI/MONTH\tACTIVE\tCOMPANY")
			for _, p := range plans {
				company := "-"
				if p.CompanyID != nil {
					company = *p.CompanyID
				}
				fmt.Fprintf(w, "%s\t%s\t%d %s/%s\t%d\t%d\t%d\t%t\t%s\n",
					p.Code, p.Name, p.PriceCents, p.Currency, p.Interval,
					p.MaxActiveJobs, p.MaxSeats, p.MonthlyAIScores, p.Active, company)
			}
			return w.Flush()
		}),
	}
	listCmd.Flags().BoolVar(&jsonOut, "json", false, "Print plans as JSON")

	var in service.PlanInput
	var features string
	createCmd := &cobra.Command{
		Use:   "create <code> <name>",
		Short: "Create a public plan, or a custom plan with --company",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
			in.Code = args[0]
			in.Name = args[1]
			in.Features = splitList(features)
			plan, err := rt.billing.CreatePlan(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(out, plan)
		}),
	}
	f := createCmd.Flags()
	f.Int64Var(&in.PriceCents, "price-cents", 0, "Price per interval in cents")
	f.StringVar(&in.Currency, "currency", "usd", "ISO currency code")
	f.StringVar(&in.Interval, "interval", "month", "Billing interval: month or year")
	f.IntVar(&in.MaxActiveJobs, "max-jobs", 0, "Active job limit (0 = unlimited)")
	f.IntVar(&in.MaxSeats, "max-seats", 0, "Seat limit (0 = unlimited)")
	f.IntVar(&in.MonthlyAIScores, "ai-scores", 0, "Monthly AI scoring quota (0 = unlimited)")
	f.StringVar(&features, "features", "", "Comma-separated feature flags")
	f.StringVar(&in.CompanyID, "company", "", "Restrict the plan to one company")

	plansCmd.AddCommand(listCmd, createCmd)
	rootCmd.AddCommand(plansCmd)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
