// Package main is the entrypoint for the Hireloop API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/hireloop/hireloop/internal/analytics"
	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/cache"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/repository"
	"github.com/hireloop/hireloop/internal/scoring"
	"github.com/hireloop/hireloop/internal/server"
	"github.com/hireloop/hireloop/internal/service"
	"github.com/hireloop/hireloop/internal/webhook"
	"github.com/hireloop/hireloop/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	secrets := scrubber{cfg.DatabaseURL, cfg.RedisURL}
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("hireloop stopped", "error", secrets.scrub(err))
		os.Exit(1)
	}
}

// run wires storage, services and workers, then blocks in the server.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres %s: %w", withoutPassword(cfg.DatabaseURL), err)
	}
	defer repo.Close()
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		applied, err := repo.Migrate(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	// The webhook store runs on database/sql with lib/pq.
	webhookDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open webhook store: %w", err)
	}
	defer webhookDB.Close()

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis %s: %w", withoutPassword(cfg.RedisURL), err)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()
	webhookStore := webhook.NewStore(webhookDB)
	publisher := webhook.NewPublisher(webhookStore, logger)
	viewPublisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)

	billingService := service.NewBillingService(repo, cacheClient, logger, service.BillingOptions{
		Policy:          cfg.BillingPolicy(),
		DefaultPlanCode: cfg.DefaultPlanCode,
		Publisher:       publisher,
		Metrics:         recorder,
	})
	svcs := services{
		billing:      billingService,
		tenancy:      service.NewTenancyService(repo, billingService, cacheClient, auth.NewInviteSigner(cfg.InviteSigningKey), cfg.APIKeyEnv, logger),
		jobs:         service.NewJobService(repo, billingService, logger),
		applications: service.NewApplicationService(repo, billingService, publisher, recorder, logger),
		candidates:   service.NewCandidateService(repo, billingService, logger),
		tickets:      service.NewTicketService(repo, logger),
		calendar:     service.NewCalendarService(repo, logger),
		webhooks:     webhookStore,
	}

	r := setupRouter(svcs, repo, cacheClient, recorder, viewPublisher, cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Background workers
	srv.Background("billing.sweeper", func(ctx context.Context) error {
		return billingService.RunSweeper(ctx, cfg.BillingSweepInterval)
	})
	if cfg.WebhookWorkerEnabled {
		worker := webhook.NewWorker(webhookStore, logger, recorder)
		worker.SetPollInterval(cfg.WebhookPollInterval)
		worker.SetBatchSize(cfg.WebhookBatchSize)
		worker.SetConcurrency(cfg.WebhookConcurrency)
		srv.Background("webhook.worker", worker.Run)
	}
	if cfg.AnalyticsWorkerEnabled {
		worker := analytics.NewWorker(cacheClient.Client(), repo, logger, "", recorder)
		srv.Background("analytics.worker", worker.Run)
	}
	if cfg.LLMAPIKey != "" {
		scorer, err := scoring.NewGeminiScorer(ctx, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			return fmt.Errorf("scorer: %w", err)
		}
		worker := scoring.NewWorker(repo, billingService, scorer, publisher, recorder, logger, scoring.WorkerConfig{
			BatchSize:    cfg.ScoringBatchSize,
			PollInterval: cfg.ScoringPollInterval,
			RPS:          cfg.ScoringRPS,
		})
		srv.Background("scoring.worker", worker.Run)
	} else {
		logger.Warn("LLM_API_KEY not set, applications will stay pending scoring")
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"key_env", cfg.APIKeyEnv,
	)
	return srv.Run()
}
