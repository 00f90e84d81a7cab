package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sameeryadav12/tasksched/internal/httpapi"
	"github.com/Sameeryadav12/tasksched/internal/journal"
	"github.com/Sameeryadav12/tasksched/internal/reminder"
	"github.com/Sameeryadav12/tasksched/pkg/clock"
	"github.com/Sameeryadav12/tasksched/pkg/env"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/metric"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
	"github.com/Sameeryadav12/tasksched/pkg/sig"
	"github.com/Sameeryadav12/tasksched/pkg/worker"
)

type config struct {
	workers         int
	pollInterval    time.Duration
	port            int
	logLevel        log.Level
	shutdownTimeout time.Duration
	journalDSN      string
}

func mustLoadConfig() config {
	levelStr := env.Must(env.ParseStringDefault("LOG_LEVEL", "info"))
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		panic(fmt.Errorf("failed to parse environment: %w", err))
	}

	return config{
		workers:         env.Must(env.ParseIntDefault("WORKERS", 4)),
		pollInterval:    env.Must(env.ParseDurationDefault("POLL_INTERVAL", 100*time.Millisecond)),
		port:            env.Must(env.ParseIntDefault("PORT", 8080)),
		logLevel:        level,
		shutdownTimeout: env.Must(env.ParseDurationDefault("SHUTDOWN_TIMEOUT", 30*time.Second)),
		journalDSN:      env.Must(env.ParseStringDefault("JOURNAL_DSN", "")),
	}
}

func main() {
	cfg := mustLoadConfig()
	logger := log.New(cfg.logLevel)
	ctx := sig.TermContext(context.Background())

	schedulerOpts := []sched.Option{
		sched.WithWorkers(cfg.workers),
		sched.WithPollInterval(cfg.pollInterval),
		sched.WithLogger(logger),
		sched.WithMetrics(metric.NewPrometheus(prometheus.DefaultRegisterer)),
	}

	if cfg.journalDSN != "" {
		taskJournal, err := journal.Open(ctx, cfg.journalDSN, logger)
		if err != nil {
			logger.WithError(err).Error(ctx, "failed to open task journal")
			return
		}
		defer taskJournal.Close()
		schedulerOpts = append(schedulerOpts, sched.OnTaskFinished(taskJournal.Hook()))
	}

	scheduler := sched.New(schedulerOpts...)
	reminders := reminder.NewManager(scheduler, clock.New(), logger)
	handler := httpapi.NewHandler(scheduler, reminders, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: handler.Router(),
	}

	logger.
		WithField("port", cfg.port).
		WithField("workers", cfg.workers).
		Info(ctx, "scheduler daemon started")

	err := worker.Run(ctx, logger,
		func(ctx context.Context) error {
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
		func(ctx context.Context) error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	)
	if err != nil {
		logger.WithError(err).Error(ctx, "daemon completed with error")
	}

	if err = scheduler.Shutdown(cfg.shutdownTimeout); err != nil {
		logger.WithError(err).Warn(ctx, "scheduler workers did not stop in time")
	}

	logger.Info(ctx, "scheduler daemon stopped")
}
