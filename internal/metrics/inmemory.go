package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of every series the process tracks.
type Snapshot struct {
	Transitions                  map[string]uint64 // keyed "from->to:trigger"
	PaymentWebhooks              map[string]uint64
	ScoringOutcomes              map[string]uint64
	ApplicationsCreated          uint64
	ScoringDurationCount         uint64
	ScoringDurationSum           time.Duration
	WebhookDeliveries            map[string]uint64
	WebhookRetries               uint64
	WebhookDeliveryDurationCount uint64
	WebhookDeliveryDurationSum   time.Duration
	WebhookQueueDepth            int64
	JobViewsPublished            map[string]uint64
	JobViewsProcessed            map[string]uint64
	JobViewQueueDepth            int64
}

// TransitionKey is the Snapshot.Transitions key of a state change.
func TransitionKey(from, to, trigger string) string {
	return from + "->" + to + ":" + trigger
}

// labeled is a counter partitioned by a single label value.
type labeled struct {
	mu sync.Mutex
	n  map[string]uint64
}

func (l *labeled) inc(label string) {
	l.mu.Lock()
	if l.n == nil {
		l.n = make(map[string]uint64)
	}
	l.n[label]++
	l.mu.Unlock()
}

func (l *labeled) copy() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == nil {
		return map[string]uint64{}
	}
	return maps.Clone(l.n)
}

// timing accumulates observations as a count and a nanosecond total.
type timing struct {
	count atomic.Uint64
	nanos atomic.Int64
}

func (t *timing) observe(d time.Duration) {
	t.count.Add(1)
	t.nanos.Add(int64(d))
}

// InMemoryRecorder keeps counters in process memory. The API serves them
// from /metrics; tests read them through Snapshot.
type InMemoryRecorder struct {
	transitions     labeled
	paymentWebhooks labeled
	scoringOutcomes labeled
	deliveries      labeled
	viewsPublished  labeled
	viewsProcessed  labeled

	scoring      timing
	webhookCalls timing

	applications   atomic.Uint64
	webhookRetries atomic.Uint64
	webhookBacklog atomic.Int64
	viewBacklog    atomic.Int64
}

func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Transitions:                  m.transitions.copy(),
		PaymentWebhooks:              m.paymentWebhooks.copy(),
		ScoringOutcomes:              m.scoringOutcomes.copy(),
		WebhookDeliveries:            m.deliveries.copy(),
		JobViewsPublished:            m.viewsPublished.copy(),
		JobViewsProcessed:            m.viewsProcessed.copy(),
		ApplicationsCreated:          m.applications.Load(),
		ScoringDurationCount:         m.scoring.count.Load(),
		ScoringDurationSum:           time.Duration(m.scoring.nanos.Load()),
		WebhookRetries:               m.webhookRetries.Load(),
		WebhookDeliveryDurationCount: m.webhookCalls.count.Load(),
		WebhookDeliveryDurationSum:   time.Duration(m.webhookCalls.nanos.Load()),
		WebhookQueueDepth:            m.webhookBacklog.Load(),
		JobViewQueueDepth:            m.viewBacklog.Load(),
	}
}

func (m *InMemoryRecorder) IncSubscriptionTransition(from, to, trigger string) {
	m.transitions.inc(TransitionKey(from, to, trigger))
}

func (m *InMemoryRecorder) IncPaymentWebhook(outcome string) { m.paymentWebhooks.inc(outcome) }
func (m *InMemoryRecorder) IncApplicationCreated()           { m.applications.Add(1) }
func (m *InMemoryRecorder) IncScoringOutcome(status string)  { m.scoringOutcomes.inc(status) }

func (m *InMemoryRecorder) ObserveScoringDuration(d time.Duration) { m.scoring.observe(d) }

// Per-endpoint labels are dropped here to keep cardinality bounded.
func (m *InMemoryRecorder) IncWebhookDelivery(status, _ string) { m.deliveries.inc(status) }
func (m *InMemoryRecorder) IncWebhookRetry(string, int)         { m.webhookRetries.Add(1) }

func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(_ string, d time.Duration) {
	m.webhookCalls.observe(d)
}

func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64)   { m.webhookBacklog.Store(depth) }
func (m *InMemoryRecorder) IncJobViewPublished(outcome string) { m.viewsPublished.inc(outcome) }
func (m *InMemoryRecorder) IncJobViewProcessed(status string)  { m.viewsProcessed.inc(status) }
func (m *InMemoryRecorder) SetJobViewQueueDepth(depth int64)   { m.viewBacklog.Store(depth) }
