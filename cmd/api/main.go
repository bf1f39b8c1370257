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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-assistant/internal/api/router"
	"github.com/wolfman30/booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/reminders"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/webchat"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, cfg, "booking-api", nil)
	if err != nil {
		logging.Default().Error("startup failed", "error", err)
		os.Exit(1)
	}
	logger := rt.Logger
	defer rt.Close(context.Background())

	queue, inProcess, err := bootstrap.BuildConversationQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build conversation queue", "error", err)
		os.Exit(1)
	}

	api := newAPI(rt, queue, promhttp.Handler())

	// With an in-process queue nothing else drains it, so the API runs the
	// worker itself.
	var worker *conversation.Worker
	if inProcess {
		worker = conversation.NewWorker(rt.Domain.Machine, queue,
			webchat.NewReplyMessenger(api.webchat, rt.Messenger, logger), logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
		worker.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Wait()
	}
	logger.Info("server stopped")
}

type apiServer struct {
	handler http.Handler
	webchat *webchat.Handler
}

func newAPI(rt *bootstrap.Runtime, queue conversation.Queue, metricsHandler http.Handler) apiServer {
	logger := rt.Logger
	chat := webchat.NewHandler(rt.Domain.Machine, logger)

	checks := map[string]router.Check{}
	for name, check := range rt.ReadinessChecks() {
		checks[name] = check
	}

	cfg := rt.Config
	handler := router.New(&router.Config{
		Logger:               logger,
		ConversationHandler:  conversation.NewHandler(conversation.NewPublisher(queue, logger), rt.Domain.Machine, logger),
		WebchatHandler:       chat,
		AvailabilityHandler:  scheduling.NewHandler(rt.Domain.Engine, logger),
		RemindersHandler:     reminders.NewHandler(rt.Domain.Reminders, logger),
		MetricsHandler:       metricsHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		OperatorJWTSecret:    cfg.OperatorJWTSecret,
		InboundRatePerSecond: cfg.InboundRateLimit,
		InboundBurst:         cfg.InboundRateBurst,
		ReadinessChecks:      checks,
		DisableTracing:       cfg.OTLPEndpoint == "",
	})
	return apiServer{handler: handler, webchat: chat}
}
