package internal

import (
	"context"
	"encoding/json"
	"fmt"

	"gitevents/pkg/events"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// riverQueuePublisher inserts one River job per notification. The client is
// insert-only; jobs are worked by whatever River workers own the kind.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

// notificationArgs is the River job payload for a notification.
type notificationArgs struct {
	events.Notification
	kind string
}

func (a notificationArgs) Kind() string { return a.kind }

// newRiverQueuePublisher creates a new RiverQueue publisher.
func newRiverQueuePublisher(ctx context.Context, cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: riverqueue dsn is required", errPublisherConfig)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

// Publish inserts a job carrying the notification for topic.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	metadata, err := json.Marshal(map[string]string{
		"provider":   event.Provider,
		"event":      event.Name,
		"topic":      topic,
		"request_id": event.RequestID,
	})
	if err != nil {
		return err
	}

	args := notificationArgs{Notification: event.Notification(topic), kind: p.cfg.Kind}
	_, err = p.client.Insert(ctx, args, &river.InsertOpts{
		MaxAttempts: p.cfg.MaxAttempts,
		Metadata:    metadata,
		Priority:    p.cfg.Priority,
		Queue:       p.cfg.Queue,
		Tags:        p.cfg.Tags,
	})
	return err
}

// Close closes the connection pool.
func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// PublishForDrivers is a convenience method that calls Publish.
func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}
