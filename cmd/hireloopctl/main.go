// Package main is the entrypoint for hireloopctl, the operator CLI for
// plan management, subscription overrides and maintenance tasks.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/cmd/hireloopctl/internal/commands"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "hireloopctl",
		Short: "Operator tool for a Hireloop deployment",
		Long: `hireloopctl talks directly to the Hireloop database and cache.
It reads the same environment as the API server (DATABASE_URL, REDIS_URL,
PAYMENT_WEBHOOK_SECRET, INVITE_SIGNING_KEY) and loads .env when present.`,
		SilenceUsage: true,
	}

	commands.InitPlanCommands(rootCmd)
	commands.InitSubscriptionCommands(rootCmd)
	commands.InitOpsCommands(rootCmd)
	commands.InitSignCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}
