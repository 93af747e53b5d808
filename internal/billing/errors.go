package billing

import "errors"

// Sentinel errors for the subscription lifecycle.
var (
	// ErrInvalidTransition is returned when a trigger is not allowed from
	// the subscription's current status.
	ErrInvalidTransition = errors.New("invalid subscription transition")
	// ErrStaleEvent is returned for webhook events older than the last
	// applied event.
	ErrStaleEvent = errors.New("stale payment event")
	// ErrUnknownEventType is returned for event types the machine ignores.
	ErrUnknownEventType = errors.New("unknown payment event type")
	// ErrInvalidAction is returned for malformed admin actions.
	ErrInvalidAction = errors.New("invalid admin action")
	// ErrMalformedEvent is returned when a webhook body cannot be decoded.
	ErrMalformedEvent = errors.New("malformed payment event")
	// ErrMalformedSignature is returned when the signature header is unparsable.
	ErrMalformedSignature = errors.New("malformed signature header")
)
