// Package metrics defines the counters Hireloop's services and workers
// report, and an in-process implementation served at /metrics.
package metrics

import "time"

type Recorder interface {
	IncSubscriptionTransition(from, to, trigger string)
	// outcome: processed, ignored, duplicate, stale, rejected, error
	IncPaymentWebhook(outcome string)

	IncApplicationCreated()
	// status: scored, failed, skipped_quota
	IncScoringOutcome(status string)
	ObserveScoringDuration(duration time.Duration)

	IncWebhookDelivery(status, endpointID string)
	// IncWebhookRetry counts failed attempts that will be tried again.
	IncWebhookRetry(endpointID string, attempt int)
	ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration)
	SetWebhookQueueDepth(depth int64)

	// outcome: success, dropped
	IncJobViewPublished(outcome string)
	// status: success, failed, dead_lettered
	IncJobViewProcessed(status string)
	SetJobViewQueueDepth(depth int64)
}

type Snapshotter interface {
	Snapshot() Snapshot
}
