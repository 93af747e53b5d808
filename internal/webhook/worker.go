package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	defaultBatchSize    = 50
	defaultConcurrency  = 4
	defaultPollInterval = 5 * time.Second
	queueDepthEvery     = 10 * time.Second
	deliveryTimeout     = 30 * time.Second
	userAgent           = "Hireloop-Webhook/1.0"
)

// deliveryQueue is the part of Store the worker drives.
type deliveryQueue interface {
	ClaimDue(ctx context.Context, limit int) ([]*model.WebhookDelivery, error)
	Endpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error)
	MarkDelivered(ctx context.Context, id string, httpStatus int) error
	MarkFailed(ctx context.Context, id string, f Failure) error
	Backlog(ctx context.Context) (int64, error)
}

// Worker sends due deliveries to tenant endpoints and schedules retries.
type Worker struct {
	queue        deliveryQueue
	client       *http.Client
	logger       *slog.Logger
	metrics      metrics.Recorder
	batchSize    int
	concurrency  int
	pollInterval time.Duration
	now          func() time.Time
	jitter       func() float64

	running   sync.Mutex
	lastDepth time.Time
}

// NewWorker creates a delivery worker.
func NewWorker(queue deliveryQueue, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		queue:        queue,
		client:       newDeliveryClient(),
		logger:       logger.With("component", "webhook.worker"),
		metrics:      recorder,
		batchSize:    defaultBatchSize,
		concurrency:  defaultConcurrency,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		jitter:       rand.Float64,
	}
}

// newDeliveryClient does not follow redirects, so a 3xx from a tenant
// endpoint counts as a failed attempt rather than a hop to an unchecked URL.
func newDeliveryClient() *http.Client {
	return &http.Client{
		Timeout: deliveryTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Run polls until ctx is cancelled. A second concurrent Run returns an error.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.TryLock() {
		return errors.New("webhook worker already running")
	}
	defer w.running.Unlock()

	w.logger.Info("webhook worker started", "poll_interval", w.pollInterval, "concurrency", w.concurrency)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return nil
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("webhook batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce claims one batch of due deliveries and sends them, at most
// concurrency at a time.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.reportQueueDepth(ctx)

	due, err := w.queue.ClaimDue(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("claim deliveries: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, d := range due {
		g.Go(func() error {
			if err := w.attempt(ctx, d); err != nil {
				w.logger.Warn("delivery bookkeeping failed", "delivery_id", d.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// attempt sends one delivery and records the outcome.
func (w *Worker) attempt(ctx context.Context, d *model.WebhookDelivery) error {
	endpoint, err := w.queue.Endpoint(ctx, d.EndpointID)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		return w.giveUp(ctx, d, nil, "endpoint deleted")
	case err != nil:
		return err
	case !endpoint.IsActive():
		return w.giveUp(ctx, d, nil, "endpoint disabled")
	}

	req, err := w.signedRequest(ctx, endpoint, d)
	if err != nil {
		return w.giveUp(ctx, d, nil, err.Error())
	}

	start := w.now()
	resp, err := w.client.Do(req)
	elapsed := w.now().Sub(start)
	w.metrics.ObserveWebhookDeliveryDuration(endpoint.ID, elapsed)
	if err != nil {
		return w.retryLater(ctx, d, nil, nil, err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		w.logger.Info("webhook delivered",
			"delivery_id", d.ID,
			"event_type", d.EventType,
			"target_host", targetHost(endpoint.TargetURL),
			"http_status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
		w.metrics.IncWebhookDelivery("success", endpoint.ID)
		return w.queue.MarkDelivered(ctx, d.ID, status)
	case status == http.StatusGone:
		// The receiver says the endpoint is retired; further attempts are noise.
		return w.giveUp(ctx, d, &status, "HTTP 410")
	default:
		return w.retryLater(ctx, d, &status, resp, fmt.Sprintf("HTTP %d", status))
	}
}

// signedRequest builds the POST for d, signed with the endpoint's key.
func (w *Worker) signedRequest(ctx context.Context, endpoint *model.WebhookEndpoint, d *model.WebhookDelivery) (*http.Request, error) {
	body := []byte(d.PayloadJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TargetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	ts := w.now().Unix()

	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(HeaderSignature, Sign(endpoint.SecretHash, ts, body))
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderDeliveryID, d.ID)
	if d.EventType != "" {
		h.Set(HeaderEventType, string(d.EventType))
	}
	return req, nil
}

// retryLater counts a failed attempt. The delivery is exhausted once it
// has used MaxAttempts; otherwise it waits out the backoff, or the
// receiver's Retry-After when that is longer.
func (w *Worker) retryLater(ctx context.Context, d *model.WebhookDelivery, status *int, resp *http.Response, reason string) error {
	failed := d.AttemptCount + 1
	exhausted := failed >= d.MaxAttempts

	wait := retryDelay(failed, w.jitter)
	if ra := retryAfter(resp); ra > wait {
		wait = ra
	}

	outcome := "failed"
	if exhausted {
		outcome = "exhausted"
	}
	w.logger.Warn("webhook delivery failed",
		"delivery_id", d.ID,
		"attempt", failed,
		"exhausted", exhausted,
		"retry_in", wait,
		"error", reason,
	)
	w.metrics.IncWebhookDelivery(outcome, d.EndpointID)
	if !exhausted {
		w.metrics.IncWebhookRetry(d.EndpointID, failed)
	}

	return w.queue.MarkFailed(ctx, d.ID, Failure{
		HTTPStatus:  status,
		Reason:      reason,
		NextAttempt: w.now().Add(wait),
		Exhausted:   exhausted,
	})
}

// giveUp exhausts d without further attempts.
func (w *Worker) giveUp(ctx context.Context, d *model.WebhookDelivery, status *int, reason string) error {
	w.logger.Warn("webhook delivery abandoned", "delivery_id", d.ID, "reason", reason)
	w.metrics.IncWebhookDelivery("exhausted", d.EndpointID)
	return w.queue.MarkFailed(ctx, d.ID, Failure{HTTPStatus: status, Reason: reason, NextAttempt: w.now(), Exhausted: true})
}

func (w *Worker) reportQueueDepth(ctx context.Context) {
	if w.now().Sub(w.lastDepth) < queueDepthEvery {
		return
	}
	w.lastDepth = w.now()

	depth, err := w.queue.Backlog(ctx)
	if err != nil {
		w.logger.Warn("queue depth unavailable", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}

// SetBatchSize overrides how many deliveries one poll claims.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetConcurrency overrides how many deliveries are in flight at once.
func (w *Worker) SetConcurrency(n int) {
	if n > 0 {
		w.concurrency = n
	}
}

// SetPollInterval overrides the time between polls.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
