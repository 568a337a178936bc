package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitevents/internal"
	"gitevents/pkg/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newListenCommand(configPath *string) *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume notification topics and log the records they carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), *configPath, topics)
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "Topic to consume (repeatable); defaults to listener.topics")
	return cmd
}

func runListen(ctx context.Context, configPath string, topics []string) error {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := internal.ConfigureLogging(config.Log); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger := internal.NewLogger("worker")

	if len(topics) == 0 {
		topics = config.Listener.Topics
	}
	if len(topics) == 0 {
		return fmt.Errorf("no topics to listen on (use --topic or listener.topics)")
	}

	w, err := worker.NewFromConfig(
		config.Listener.Subscriber,
		internal.NewWatermillLogger(logger),
		worker.WithTopics(topics...),
		worker.WithConcurrency(config.Listener.Concurrency),
		worker.WithLogger(logger),
		worker.WithMiddleware(worker.Recoverer),
	)
	if err != nil {
		return fmt.Errorf("subscriber: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn().Err(err).Msg("close subscriber")
		}
	}()
	for _, topic := range topics {
		w.HandleTopic(topic, logNotification)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}

func logNotification(ctx context.Context, d *worker.Delivery) error {
	record := d.Notification.Record
	zerolog.Ctx(ctx).Info().
		Str("provider", d.Notification.Provider).
		Str("event", d.Notification.Event).
		Interface("record", record).
		Msg("notification received")
	return nil
}
