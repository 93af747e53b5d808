package handler

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/metrics"
)

// MetricsHandler renders the recorder's snapshot as Prometheus text.
type MetricsHandler struct {
	source metrics.Snapshotter
}

func NewMetricsHandler(source metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{source: source}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s := h.source.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	e := exposition{w: w}

	e.family("hireloop_subscription_transitions_total", "counter", "Subscription state changes.")
	for _, key := range slices.Sorted(maps.Keys(s.Transitions)) {
		from, rest, _ := strings.Cut(key, "->")
		to, trigger, _ := strings.Cut(rest, ":")
		e.sample("hireloop_subscription_transitions_total", s.Transitions[key], "from", from, "to", to, "trigger", trigger)
	}
	e.counterVec("hireloop_payment_webhooks_total", "Payment provider callbacks by outcome.", "outcome", s.PaymentWebhooks)

	e.single("hireloop_applications_created_total", "counter", "Applications received.", s.ApplicationsCreated)
	e.counterVec("hireloop_scoring_outcomes_total", "AI scoring attempts by result.", "status", s.ScoringOutcomes)
	e.summary("hireloop_scoring_duration_seconds", "Time spent in AI scoring calls.", s.ScoringDurationCount, s.ScoringDurationSum)

	e.counterVec("hireloop_webhook_deliveries_total", "Outbound webhook attempts by result.", "status", s.WebhookDeliveries)
	e.single("hireloop_webhook_retries_total", "counter", "Outbound webhook attempts that will be retried.", s.WebhookRetries)
	e.summary("hireloop_webhook_delivery_duration_seconds", "Outbound webhook request latency.", s.WebhookDeliveryDurationCount, s.WebhookDeliveryDurationSum)
	e.single("hireloop_webhook_queue_depth", "gauge", "Deliveries waiting to be sent.", s.WebhookQueueDepth)

	e.counterVec("hireloop_job_views_published_total", "Careers page views handed to the stream.", "outcome", s.JobViewsPublished)
	e.counterVec("hireloop_job_views_processed_total", "Careers page views aggregated by the worker.", "status", s.JobViewsProcessed)
	e.single("hireloop_job_view_queue_depth", "gauge", "Views waiting in the stream.", s.JobViewQueueDepth)
}

// exposition writes the Prometheus text format. Write errors are dropped;
// the client has gone away.
type exposition struct {
	w io.Writer
}

func (e exposition) family(name, kind, help string) {
	_, _ = fmt.Fprintf(e.w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

// sample writes one line. labels alternates name and value.
func (e exposition) sample(name string, v any, labels ...string) {
	if len(labels) == 0 {
		_, _ = fmt.Fprintf(e.w, "%s %d\n", name, v)
		return
	}
	pairs := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", labels[i], labels[i+1]))
	}
	_, _ = fmt.Fprintf(e.w, "%s{%s} %d\n", name, strings.Join(pairs, ","), v)
}

func (e exposition) single(name, kind, help string, v any) {
	e.family(name, kind, help)
	e.sample(name, v)
}

// summary writes the _sum and _count series of a duration.
func (e exposition) summary(name, help string, count uint64, sum time.Duration) {
	e.family(name, "summary", help)
	_, _ = fmt.Fprintf(e.w, "%s_sum %s\n", name, strconv.FormatFloat(sum.Seconds(), 'f', -1, 64))
	_, _ = fmt.Fprintf(e.w, "%s_count %d\n", name, count)
}

func (e exposition) counterVec(name, help, label string, counts map[string]uint64) {
	e.family(name, "counter", help)
	for _, key := range slices.Sorted(maps.Keys(counts)) {
		e.sample(name, counts[key], label, key)
	}
}
