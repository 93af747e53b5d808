package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	ConsumerGroup = "job_view_workers"

	DefaultBatchSize    = 500
	DefaultBlockTimeout = 5 * time.Second

	// Views pending on a dead consumer for longer than reclaimAfter are
	// taken over every housekeepEvery.
	reclaimAfter   = 30 * time.Second
	housekeepEvery = 10 * time.Second

	storeAttempts = 3
	deadLetterLen = 10000
)

// Repository persists view events and their daily aggregates.
type Repository interface {
	InsertJobViews(ctx context.Context, views []*model.JobView) error
	RefreshDailyJobViews(ctx context.Context, views []*model.JobView) error
}

// Worker reads the view stream as a member of ConsumerGroup. A message is
// acknowledged once its batch is stored or it has been dead-lettered, so a
// crash leaves work pending for a peer to reclaim.
type Worker struct {
	redis    *redis.Client
	repo     Repository
	logger   *slog.Logger
	metrics  metrics.Recorder
	consumer string

	batchSize int
	block     time.Duration
	backoff   func(attempt int) time.Duration

	running atomic.Bool
}

// NewWorker creates a Worker. An empty consumer name is derived from the
// host and process.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumer string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if consumer == "" {
		consumer = NewConsumerID()
	}
	return &Worker{
		redis:     client,
		repo:      repo,
		logger:    logger.With("component", "analytics.worker", "consumer", consumer),
		metrics:   recorder,
		consumer:  consumer,
		batchSize: DefaultBatchSize,
		block:     DefaultBlockTimeout,
		backoff:   func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
	}
}

func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + ulid.Make().String()
}

// Run consumes until ctx is cancelled. Fresh reads and the reclaim of
// stale pending entries run side by side.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("analytics worker already running")
	}
	defer w.running.Store(false)

	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	w.logger.Info("analytics worker started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.consume(ctx) })
	g.Go(func() error { return w.housekeep(ctx) })
	err = g.Wait()
	w.logger.Info("analytics worker stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context) error {
	for ctx.Err() == nil {
		streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: w.consumer,
			Streams:  []string{StreamKey, ">"},
			Count:    int64(w.batchSize),
			Block:    w.block,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("read view stream", "error", err)
			sleepCtx(ctx, time.Second)
			continue
		}
		for _, s := range streams {
			if err := w.handle(ctx, s.Messages); err != nil && ctx.Err() == nil {
				w.logger.Error("view batch left pending", "count", len(s.Messages), "error", err)
			}
		}
	}
	return nil
}

func (w *Worker) housekeep(ctx context.Context) error {
	t := time.NewTicker(housekeepEvery)
	defer t.Stop()

	cursor := "0-0"
	for {
		w.reportBacklog(ctx)

		msgs, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamKey,
			Group:    ConsumerGroup,
			Consumer: w.consumer,
			MinIdle:  reclaimAfter,
			Start:    cursor,
			Count:    int64(w.batchSize),
		}).Result()
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			if ctx.Err() == nil {
				w.logger.Warn("reclaim pending views", "error", err)
			}
		case len(msgs) > 0:
			w.logger.Info("reclaimed pending views", "count", len(msgs))
			if err := w.handle(ctx, msgs); err != nil && ctx.Err() == nil {
				w.logger.Error("reclaimed batch left pending", "error", err)
			}
		}
		if next != "" {
			cursor = next
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) reportBacklog(ctx context.Context) {
	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			w.logger.Warn("read stream group info", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetJobViewQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// handle stores the usable views of msgs, dead-letters the rest and acks
// all of them. Nothing is acked when storing fails.
func (w *Worker) handle(ctx context.Context, msgs []redis.XMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	b := decode(msgs)
	for _, r := range b.rejected {
		w.deadLetter(ctx, r)
	}
	if len(b.views) > 0 {
		if err := w.storeWithRetry(ctx, b.views); err != nil {
			return err
		}
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, b.ids...).Err(); err != nil {
		return fmt.Errorf("ack views: %w", err)
	}
	return nil
}

type rejected struct {
	id      string
	reason  string
	detail  string
	payload any
}

type decoded struct {
	ids      []string
	views    []*model.JobView
	rejected []rejected
}

// decode turns stream entries into views. The entry ID doubles as the
// event ID, which makes redelivery idempotent at insert time.
func decode(msgs []redis.XMessage) decoded {
	var out decoded
	for _, m := range msgs {
		out.ids = append(out.ids, m.ID)

		raw, ok := m.Values["payload"].(string)
		if !ok {
			out.rejected = append(out.rejected, rejected{m.ID, "invalid_format", "payload field missing or not a string", m.Values["payload"]})
			continue
		}
		var p ViewEventPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			out.rejected = append(out.rejected, rejected{m.ID, "unmarshal_error", err.Error(), raw})
			continue
		}
		if err := p.Validate(); err != nil {
			out.rejected = append(out.rejected, rejected{m.ID, "validation_error", err.Error(), raw})
			continue
		}
		out.views = append(out.views, p.view(m.ID))
	}
	return out
}

func (w *Worker) deadLetter(ctx context.Context, r rejected) {
	w.logger.Warn("dead-lettering view event", "message_id", r.id, "reason", r.reason, "detail", r.detail)
	w.metrics.IncJobViewProcessed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterLen,
		Approx: true,
		Values: map[string]any{
			"original_id":      r.id,
			"reason":           r.reason,
			"detail":           r.detail,
			"payload":          r.payload,
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("write dead-letter entry", "message_id", r.id, "error", err)
	}
}

func (w *Worker) storeWithRetry(ctx context.Context, views []*model.JobView) error {
	var err error
	for attempt := 1; attempt <= storeAttempts; attempt++ {
		if err = w.store(ctx, views); err == nil {
			w.countViews(len(views), "success")
			return nil
		}
		wait := w.backoff(attempt)
		w.logger.Warn("store views failed", "attempt", attempt, "retry_in", wait.String(), "error", err)
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
	w.countViews(len(views), "failed")
	return err
}

func (w *Worker) store(ctx context.Context, views []*model.JobView) error {
	if err := w.repo.InsertJobViews(ctx, views); err != nil {
		return fmt.Errorf("insert views: %w", err)
	}
	if err := w.repo.RefreshDailyJobViews(ctx, views); err != nil {
		return fmt.Errorf("refresh daily views: %w", err)
	}
	return nil
}

func (w *Worker) countViews(n int, status string) {
	for range n {
		w.metrics.IncJobViewProcessed(status)
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
