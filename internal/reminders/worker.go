package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Dispatcher delivers one due reminder. Delivery mechanics live outside
// this package.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Entry) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, e Entry) error

func (f DispatcherFunc) Dispatch(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// Worker hands due entries to a Dispatcher and marks them sent.
type Worker struct {
	store      EntryStore
	dispatcher Dispatcher
	metrics    *metrics.ReminderMetrics
	logger     *logging.Logger
	batchSize  int
	now        func() time.Time
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithReminderMetrics(m *metrics.ReminderMetrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithClock overrides the time source used to select due entries.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker creates a reminder worker.
func NewWorker(store EntryStore, dispatcher Dispatcher, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if store == nil {
		panic("reminders: store required")
	}
	if dispatcher == nil {
		panic("reminders: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		batchSize:  50,
		now:        func() time.Time { return scheduling.WallClock(time.Now()) },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessDue dispatches every pending entry whose fire time has passed and
// returns how many were sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	entries, err := w.store.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reminders worker: list due: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	w.logger.Info("reminders worker: processing due entries", "count", len(entries))

	processed := 0
	for i := range entries {
		e := entries[i]
		if err := w.processOne(ctx, e); err != nil {
			w.metrics.ObserveProcessed("failed")
			w.logger.Error("reminders worker: failed to process entry", "id", e.ID, "error", err)
			continue
		}
		w.metrics.ObserveProcessed(string(StatusSent))
		processed++
	}
	return processed, nil
}

func (w *Worker) processOne(ctx context.Context, e Entry) error {
	if err := w.dispatcher.Dispatch(ctx, e); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := w.store.MarkSent(ctx, e.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	w.logger.Info("reminders worker: entry sent",
		"id", e.ID, "tenant_id", e.TenantID, "appointment_id", e.AppointmentID)
	return nil
}

// Run polls every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDue(ctx); err != nil {
			w.logger.Error("reminders worker: poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Debug("reminders worker stopping")
			return
		case <-ticker.C:
		}
	}
}
