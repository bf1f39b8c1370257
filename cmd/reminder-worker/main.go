package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/messaging"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/reminders"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.Start(ctx, cfg, "booking-reminder-worker", nil)
	if err != nil {
		logging.Default().Error("startup failed", "error", err)
		os.Exit(1)
	}
	logger := rt.Logger
	defer rt.Close(context.Background())
	if rt.Pool == nil {
		logger.Warn("no database configured; reminders only cover appointments booked by this process")
	}

	worker := newWorker(rt, nil)

	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()

	logger.Info("reminder worker polling", "interval", cfg.ReminderPollInterval, "batch", cfg.ReminderBatchSize)
	worker.Run(ctx, cfg.ReminderPollInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("reminder worker stopped")
}

func newWorker(rt *bootstrap.Runtime, reg prometheus.Registerer, opts ...reminders.WorkerOption) *reminders.Worker {
	dispatcher := messaging.NewReminderDispatcher(rt.Domain.Catalog, rt.Messenger, rt.Config.ReminderTemplate)
	opts = append([]reminders.WorkerOption{
		reminders.WithBatchSize(rt.Config.ReminderBatchSize),
		reminders.WithReminderMetrics(metrics.NewReminderMetrics(reg)),
	}, opts...)
	return reminders.NewWorker(rt.Domain.Reminders, dispatcher, rt.Logger, opts...)
}
