package storage

import (
	"context"
	"errors"

	"gitevents/pkg/events"
)

// ErrInvalidAction is returned when a record carries an action outside the
// PUSH / MERGE / PULL_REQUEST set.
var ErrInvalidAction = errors.New("invalid event action")

// DefaultRecentLimit is the size of the most-recent window served to readers.
const DefaultRecentLimit = 20

// EventStore is the append-only log of normalized webhook records.
type EventStore interface {
	// InsertEvent appends one record. Failures are returned as is; nothing is retried.
	InsertEvent(ctx context.Context, record events.Record) error
	// RecentEvents returns at most limit records ordered by timestamp descending.
	RecentEvents(ctx context.Context, limit int) ([]events.Record, error)
	Close() error
}
