package conversation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Publisher enqueues inbound turns for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueMessage publishes one inbound turn and returns its job id. The
// caller's trace context travels with the job so the worker's span joins
// the same trace.
func (p *Publisher) EnqueueMessage(ctx context.Context, msg IncomingMessage) (string, error) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	job, err := encodeJob(queuePayload{Message: msg, Trace: carrier})
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, job); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue turn: %w", err)
	}
	p.logger.Debug("conversation turn enqueued", "job_id", job.ID, "tenant_id", msg.TenantID)
	return job.ID, nil
}
