// Command worker works the River jobs inserted by the riverqueue notification
// driver and logs the record each one carries.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitevents/internal"
	"gitevents/pkg/events"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

var jobKind = "gitevents.notification"

// NotificationArgs matches the job args written by the publisher.
type NotificationArgs struct {
	events.Notification
}

func (NotificationArgs) Kind() string { return jobKind }

type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	logger := internal.NewLogger("river-worker")
	if job.Args.Record.Action == "" {
		return river.JobCancel(errMissingAction)
	}
	logger.Info().
		Int64("job_id", job.ID).
		Str("queue", job.Queue).
		Str("topic", job.Args.Topic).
		Str("delivery_id", job.Args.DeliveryID).
		Interface("record", job.Args.Record).
		Msg("notification job")
	return nil
}

var errMissingAction = errors.New("notification has no record action")

func main() {
	dsn := flag.String("dsn", os.Getenv("RIVER_DATABASE_URL"), "Postgres DSN")
	queue := flag.String("queue", "default", "River queue")
	kind := flag.String("kind", jobKind, "River job kind")
	maxWorkers := flag.Int("max-workers", 5, "Max workers for the queue")
	flag.Parse()

	logger := internal.NewLogger("river-worker")
	jobKind = *kind

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer dbPool.Close()

	workers := river.NewWorkers()
	river.AddWorker(workers, &NotificationWorker{})

	client, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Queues: map[string]river.QueueConfig{
			*queue: {MaxWorkers: *maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("river client")
	}

	if err := client.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("river start")
	}
	logger.Info().Str("queue", *queue).Str("kind", jobKind).Msg("working notifications")

	<-ctx.Done()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := client.Stop(stopCtx); err != nil {
		logger.Warn().Err(err).Msg("river stop")
	}
}
