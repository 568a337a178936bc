package worker

import "context"

// RetryDecision defines whether a message should be redelivered.
type RetryDecision struct {
	Nack bool
}

// RetryPolicy decides what happens to a message whose handling failed.
// d is nil when the message could not be decoded.
type RetryPolicy interface {
	OnError(ctx context.Context, d *Delivery, err error) RetryDecision
}

// NoRetry acks failed messages so they are never redelivered.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, d *Delivery, err error) RetryDecision {
	return RetryDecision{Nack: false}
}

// NackOnError asks the broker to redeliver messages whose handler failed.
// Undecodable messages are acked since redelivery cannot fix them.
type NackOnError struct{}

func (NackOnError) OnError(ctx context.Context, d *Delivery, err error) RetryDecision {
	return RetryDecision{Nack: d != nil}
}
