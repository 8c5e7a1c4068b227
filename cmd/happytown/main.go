package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smaller-world/happytown.life/internal/agent"
	"github.com/smaller-world/happytown.life/internal/agent/llm"
	"github.com/smaller-world/happytown.life/internal/config"
	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/internal/database"
	"github.com/smaller-world/happytown.life/internal/dispatcher"
	"github.com/smaller-world/happytown.life/internal/resolver"
	"github.com/smaller-world/happytown.life/internal/retry"
	"github.com/smaller-world/happytown.life/internal/service"
	"github.com/smaller-world/happytown.life/internal/tracing"
	"github.com/smaller-world/happytown.life/internal/trigger"
	"github.com/smaller-world/happytown.life/pkg/wasender"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer := tracing.NewManager(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)
	if err := tracer.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	gateway := wasender.NewClient(wasender.ClientConfig{
		BaseURL:            cfg.WASender.APIBaseURL,
		APIKey:             cfg.WASender.APIKey,
		Timeout:            time.Duration(cfg.WASender.TimeoutSec) * time.Second,
		ProtectionInterval: time.Duration(cfg.WASender.ProtectionIntervalSec) * time.Second,
		DeliveryEnabled:    cfg.WASender.DeliveryEnabled,
	}, logger)

	disp := dispatcher.New(dispatcher.Config{
		Workers:   cfg.Dispatcher.Workers,
		QueueSize: cfg.Dispatcher.QueueSize,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Jitter:       true,
		},
	}, logger)

	completions := llm.NewClient(llm.Config{
		BaseURL: cfg.Agent.BaseURL,
		APIKey:  cfg.Agent.APIKey,
		Model:   cfg.Agent.Model,
	})
	bot := agent.New(completions, db, gateway, agent.Config{
		AgentName:     cfg.Agent.AgentName,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
	}, logger)

	staleAfter := time.Duration(cfg.Reconcile.StaleAfterHours) * time.Hour
	trig := &trigger.Trigger{
		SelfLID:      cfg.WASender.SelfLID,
		SelfPhoneJID: cfg.WASender.SelfPhoneJID,
		SyncMaxAge:   staleAfter,
	}
	res := resolver.New(db, cfg.WASender.SelfLID, logger)

	svc := service.New(db, gateway, disp, res, trig, bot, service.Config{
		MaxEventLogLength: cfg.Database.MaxEventLogLength,
		SyncMaxAge:        staleAfter,
	}, logger)

	disp.Start(ctx)
	reconciler := service.NewReconciler(svc, time.Duration(cfg.Reconcile.IntervalHours)*time.Hour, logger)
	reconciler.Start(ctx)

	srv := newServer(db, svc, cfg.Server.WebhookSecret, logger).httpServer(cfg.Server.Port)

	errCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		constants.DefaultGracefulShutdownSec*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	cancel()
	disp.Stop()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown incomplete")
	}

	logger.Info("Shutdown complete")
	return nil
}

// openDatabase retries initialization briefly; the database file may live
// on storage that attaches after the process starts.
func openDatabase(ctx context.Context, path string, logger *logrus.Logger) (*database.Database, error) {
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err := backoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(path)
		if openErr != nil {
			logger.WithError(openErr).Warn("Database not ready, retrying")
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
