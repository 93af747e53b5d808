package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	// DefaultBatchSize is the number of applications claimed per poll.
	DefaultBatchSize = 10
	// DefaultPollInterval is the time between polls for pending applications.
	DefaultPollInterval = 5 * time.Second
	// DefaultRPS caps model calls per second across the worker.
	DefaultRPS = 1.0

	scoreTimeout = 60 * time.Second
	leaseMargin  = time.Minute
)

// jobStore is the subset of Repository the worker needs.
type jobStore interface {
	ClaimPendingScoring(ctx context.Context, limit int, lease time.Duration) ([]*model.ScoringJob, error)
	SaveScore(ctx context.Context, a *model.Application) error
	SetScoreStatus(ctx context.Context, id string, status model.ScoreStatus) error
}

// quota meters AI usage per company.
type quota interface {
	ConsumeAIScore(ctx context.Context, companyID string) (bool, error)
	RefundAIScore(ctx context.Context, companyID string) error
}

// publisher fans application events out to tenant webhooks.
type publisher interface {
	Publish(ctx context.Context, companyID string, eventType model.EventType, data any) error
}

// assessor rates one application.
type assessor interface {
	Score(ctx context.Context, job *model.Job, candidate *model.CandidateProfile, coverLetter string) (*Result, error)
}

// WorkerConfig tunes the scoring loop. Zero values use the defaults.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RPS          float64
}

// Worker scores pending applications in the background.
type Worker struct {
	store        jobStore
	quota        quota
	scorer       assessor
	publisher    publisher
	metrics      metrics.Recorder
	limiter      *rate.Limiter
	logger       *slog.Logger
	batchSize    int
	lease        time.Duration
	pollInterval time.Duration
	now          func() time.Time
	started      bool
}

// NewWorker creates a scoring worker.
func NewWorker(store jobStore, q quota, scorer assessor, pub publisher, recorder metrics.Recorder, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	return &Worker{
		store:        store,
		quota:        q,
		scorer:       scorer,
		publisher:    pub,
		metrics:      recorder,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:       logger.With("component", "scoring.worker"),
		batchSize:    cfg.BatchSize,
		lease:        claimLease(cfg.BatchSize, cfg.RPS),
		pollInterval: cfg.PollInterval,
		now:          time.Now,
	}
}

// claimLease covers a whole batch, where every item may wait for the
// limiter and then run to the scoring timeout.
func claimLease(batch int, rps float64) time.Duration {
	perItem := scoreTimeout + time.Duration(float64(time.Second)/rps)
	return time.Duration(batch)*perItem + leaseMargin
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("scoring worker started", "batch_size", w.batchSize, "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scoring worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ProcessOnce claims one batch and scores it. It returns the number of
// applications handled.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.ClaimPendingScoring(ctx, w.batchSize, w.lease)
	if err != nil {
		return 0, fmt.Errorf("claim pending scoring: %w", err)
	}

	for i, job := range jobs {
		if err := w.limiter.Wait(ctx); err != nil {
			// Unprocessed claims expire with their lease.
			return i, err
		}
		if err := w.process(ctx, job); err != nil {
			w.logger.Warn("scoring failed",
				"application_id", job.Application.ID,
				"error", err,
			)
		}
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job *model.ScoringJob) error {
	app := job.Application

	ok, err := w.quota.ConsumeAIScore(ctx, app.CompanyID)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if !ok {
		w.metrics.IncScoringOutcome(string(model.ScoreSkippedQuota))
		w.logger.Info("scoring_skipped_quota", "application_id", app.ID, "company_id", app.CompanyID)
		return w.store.SetScoreStatus(ctx, app.ID, model.ScoreSkippedQuota)
	}

	start := time.Now()
	scoreCtx, cancel := context.WithTimeout(ctx, scoreTimeout)
	result, err := w.scorer.Score(scoreCtx, job.Job, job.Candidate, app.CoverLetter)
	cancel()
	w.metrics.ObserveScoringDuration(time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown; the lease returns the application to the queue.
			w.refund(context.WithoutCancel(ctx), app.CompanyID)
			return ctx.Err()
		}
		w.metrics.IncScoringOutcome(string(model.ScoreFailed))
		w.refund(ctx, app.CompanyID)
		if serr := w.store.SetScoreStatus(ctx, app.ID, model.ScoreFailed); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}

	now := w.now().UTC()
	score := result.Score
	app.Score = &score
	app.ScoreSummary = result.Summary
	app.ScoreDetails = &model.ScoreDetails{Strengths: result.Strengths, Concerns: result.Concerns}
	app.ScoreStatus = model.ScoreScored
	app.ScoredAt = &now
	app.UpdatedAt = now
	if err := w.store.SaveScore(ctx, app); err != nil {
		// The application stays pending and is charged again when reclaimed.
		w.refund(context.WithoutCancel(ctx), app.CompanyID)
		return fmt.Errorf("save score: %w", err)
	}

	w.metrics.IncScoringOutcome(string(model.ScoreScored))
	w.logger.Info("application_scored",
		"application_id", app.ID,
		"company_id", app.CompanyID,
		"score", score,
	)

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, app.CompanyID, model.EventApplicationScored, model.ApplicationEventData{
			ApplicationID: app.ID,
			JobID:         app.JobID,
			CandidateID:   app.CandidateID,
			Status:        string(app.Status),
			Score:         app.Score,
		}); err != nil {
			w.logger.Warn("event publish failed", "event", model.EventApplicationScored, "application_id", app.ID, "error", err)
		}
	}
	return nil
}

func (w *Worker) refund(ctx context.Context, companyID string) {
	if err := w.quota.RefundAIScore(ctx, companyID); err != nil {
		w.logger.Warn("quota refund failed", "company_id", companyID, "error", err)
	}
}
