package metrics

import "time"

type noop struct{}

// NewNoop returns a Recorder that drops everything.
func NewNoop() Recorder { return noop{} }

func (noop) IncSubscriptionTransition(string, string, string)     {}
func (noop) IncPaymentWebhook(string)                             {}
func (noop) IncApplicationCreated()                               {}
func (noop) IncScoringOutcome(string)                             {}
func (noop) ObserveScoringDuration(time.Duration)                 {}
func (noop) IncWebhookDelivery(string, string)                    {}
func (noop) IncWebhookRetry(string, int)                          {}
func (noop) ObserveWebhookDeliveryDuration(string, time.Duration) {}
func (noop) SetWebhookQueueDepth(int64)                           {}
func (noop) IncJobViewPublished(string)                           {}
func (noop) IncJobViewProcessed(string)                           {}
func (noop) SetJobViewQueueDepth(int64)                           {}
