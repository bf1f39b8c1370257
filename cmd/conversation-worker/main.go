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

	"github.com/wolfman30/booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.Start(ctx, cfg, "booking-conversation-worker", nil)
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
	if inProcess {
		logger.Error("conversation worker needs CONVERSATION_QUEUE_URL; the in-process queue is drained by the API")
		os.Exit(1)
	}

	worker := conversation.NewWorker(rt.Domain.Machine, queue, rt.Messenger, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)

	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down conversation worker...")

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
