package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gitevents/internal"
	"gitevents/pkg/api"
	"gitevents/pkg/storage/records"
	"gitevents/pkg/web"
	"gitevents/pkg/webhook"
)

const (
	shutdownTimeout = 10 * time.Second
	rateLimiterIdle = 10 * time.Minute
)

func runServe(ctx context.Context, configPath string) error {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := internal.ConfigureLogging(config.Log); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger := internal.NewLogger("server")

	store, err := records.Open(records.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Table:       config.Storage.Table,
		AutoMigrate: *config.Storage.AutoMigrate,
		Logger:      internal.NewGormLogger(internal.NewLogger("store")),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()
	logger.Info().Str("driver", config.Storage.Driver).Str("table", config.Storage.Table).Msg("event store ready")

	opts := []webhook.GitHubOption{
		webhook.WithMaxBody(config.Server.MaxBodyBytes),
		webhook.WithDebugEvents(config.Server.DebugEvents),
	}
	if config.Notifications.Enabled {
		ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
			Rules:  config.Rules,
			Strict: config.RulesStrict,
		}, internal.NewLogger("rules"))
		if err != nil {
			return fmt.Errorf("compile rules: %w", err)
		}
		publisher, err := internal.NewPublisher(config.Watermill, internal.NewLogger("publisher"))
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("close publisher")
			}
		}()
		opts = append(opts,
			webhook.WithNotifications(ruleEngine, publisher),
			webhook.WithPublishTimeout(time.Duration(config.Notifications.TimeoutMS)*time.Millisecond),
		)
		logger.Info().Strs("drivers", config.Watermill.PublisherDrivers()).Int("rules", len(config.Rules)).Msg("notifications enabled")
	}

	ghHandler, err := webhook.NewGitHubHandler(store, internal.NewLogger("webhook"), opts...)
	if err != nil {
		return fmt.Errorf("github handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(config.Webhook.Path, ghHandler)
	mux.Handle(config.Webhook.EventsPath, &api.EventsHandler{
		Store:  store,
		Limit:  config.Webhook.RecentLimit,
		Logger: internal.NewLogger("api"),
	})
	mux.Handle(config.Webhook.HealthPath, api.HealthHandler{})
	mux.Handle("/static/", web.StaticHandler())
	mux.Handle("/", web.IndexHandler())
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, internal.MetricsHandler())
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           internal.NewRateLimitHandler(mux, config.Server.RateLimitRPS, config.Server.RateLimitBurst, rateLimiterIdle),
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("webhook", config.Webhook.Path).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
	return nil
}
