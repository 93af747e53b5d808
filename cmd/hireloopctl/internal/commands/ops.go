package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/migrations"
)

// InitOpsCommands registers maintenance commands.
func InitOpsCommands(rootCmd *cobra.Command) {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Advance every subscription whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, rt *runtime, _ []string, out io.Writer) error {
			n, err := rt.billing.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d subscription(s) advanced\n", n)
			return nil
		}),
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, rt *runtime, _ []string, out io.Writer) error {
			applied, err := rt.repo.Migrate(ctx, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(out, "applied", name)
			}
			return nil
		}),
	}

	var (
		name   string
		format string
	)
	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap-admin <email>",
		Short: "Create a platform staff API key",
		Long: `Create a platform staff API key for email, creating the user when needed.
The plaintext key is printed once and cannot be recovered.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(*cobra.Command, []string) error {
			if format != "plain" && format != "json" {
				return fmt.Errorf("--format must be plain or json, got %q", format)
			}
			return nil
		},
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
			issued, err := rt.tenancy.CreatePlatformKey(ctx, args[0], name)
			if err != nil {
				return err
			}
			if format == "json" {
				return printJSON(out, map[string]any{
					"user_id":    issued.Key.UserID,
					"email":      strings.ToLower(strings.TrimSpace(args[0])),
					"key_id":     issued.Key.ID,
					"key":        issued.Plaintext,
					"key_prefix": issued.Key.KeyPrefix,
					"scopes":     issued.Key.Scopes,
				})
			}
			fmt.Fprintln(out, issued.Plaintext)
			return nil
		}),
	}
	bootstrapCmd.Flags().StringVar(&name, "name", "", "Display name for a newly created user")
	bootstrapCmd.Flags().StringVar(&format, "format", "plain", "Output format: plain or json")

	rootCmd.AddCommand(sweepCmd, migrateCmd, bootstrapCmd)
}
