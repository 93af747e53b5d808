// Package commands holds the hireloopctl sub-commands.
package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/cache"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/repository"
	"github.com/hireloop/hireloop/internal/service"
	"github.com/hireloop/hireloop/internal/webhook"
)

// runtime is the set of connections a command needs. Close releases them.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    *repository.Repository
	cache   *cache.Cache
	db      *sql.DB
	billing *service.BillingService
	tenancy *service.TenancyService
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		repo.Close()
		c.Close()
		return nil, fmt.Errorf("open webhook database handle: %w", err)
	}

	publisher := webhook.NewPublisher(webhook.NewStore(db), logger)
	billingService := service.NewBillingService(repo, c, logger, service.BillingOptions{
		Policy:          cfg.BillingPolicy(),
		DefaultPlanCode: cfg.DefaultPlanCode,
		Publisher:       publisher,
	})
	return &runtime{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		cache:   c,
		db:      db,
		billing: billingService,
		tenancy: service.NewTenancyService(repo, billingService, c, auth.NewInviteSigner(cfg.InviteSigningKey), cfg.APIKeyEnv, logger),
	}, nil
}

func (rt *runtime) Close() {
	rt.db.Close()
	rt.cache.Close()
	rt.repo.Close()
}

// withRuntime adapts a function that needs connections to a cobra RunE.
func withRuntime(fn func(ctx context.Context, rt *runtime, args []string, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(ctx, rt, args, cmd.OutOrStdout())
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
