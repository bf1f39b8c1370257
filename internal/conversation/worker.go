package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// TurnHandler processes one inbound turn. Machine implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in IncomingMessage) (*OutgoingMessage, error)
}

// FailureReply is sent when a turn fails outright, so the contact is never
// left without an answer.
const FailureReply = "Sorry, something went wrong on our side. Please try again in a moment."

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	contactLockStripes   = 64
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker consumes queued turns, runs them through the state machine and
// sends the replies. Turns of one contact never run concurrently.
type Worker struct {
	turns     TurnHandler
	queue     Queue
	messenger ReplyMessenger
	logger    *logging.Logger

	cfg   workerConfig
	wg    sync.WaitGroup
	locks [contactLockStripes]sync.Mutex
}

// NewWorker constructs a queue consumer around the provided turn handler.
func NewWorker(turns TurnHandler, queue Queue, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if turns == nil {
		panic("conversation: turn handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		turns:     turns,
		queue:     queue,
		messenger: messenger,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive conversation turns", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	defer w.deleteMessage(msg)

	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation turn", "error", err, "message_id", msg.ID)
		return
	}
	in := payload.Message
	logger := w.logger.WithTenant(in.TenantID)

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(payload.Trace))
	ctx, span := conversationTracer.Start(ctx, "conversation.worker.job", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("conversation.job_id", payload.ID))
	if !payload.EnqueuedAt.IsZero() {
		span.SetAttributes(attribute.Int64("conversation.queue_wait_ms", time.Since(payload.EnqueuedAt).Milliseconds()))
	}

	unlock := w.lockContact(in.TenantID, in.ContactID)
	out, err := w.turns.HandleTurn(ctx, in)
	unlock()

	if err != nil {
		logger.Error("conversation turn failed", "error", err, "job_id", payload.ID, "contact_id", in.ContactID)
		if errors.Is(err, ErrUnknownTenant) {
			return
		}
		out = &OutgoingMessage{TenantID: in.TenantID, ContactID: in.ContactID, Content: FailureReply}
	}
	if err := w.messenger.SendReply(ctx, *out); err != nil {
		logger.Error("failed to send conversation reply", "error", err, "job_id", payload.ID, "contact_id", in.ContactID)
	}
}

// deleteMessage acknowledges a handled message even when the worker is
// shutting down, so it is not redelivered.
func (w *Worker) deleteMessage(msg QueueMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete conversation turn", "error", err, "message_id", msg.ID)
	}
}

func (w *Worker) lockContact(tenantID, contactID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(contactID))
	mu := &w.locks[h.Sum32()%contactLockStripes]
	mu.Lock()
	return mu.Unlock
}
