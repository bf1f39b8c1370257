package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries inbound turns from the webhook to the workers.
type Queue interface {
	Send(ctx context.Context, job Job) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Job is one encoded turn ready to enqueue. GroupKey orders jobs for one
// contact on queues that support ordering.
type Job struct {
	ID       string
	GroupKey string
	Body     string
}

// QueueMessage is one received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// queuePayload is the JSON body of a Job. Trace holds the W3C trace context
// of the request that enqueued the turn.
type queuePayload struct {
	ID         string            `json:"id"`
	Message    IncomingMessage   `json:"message"`
	Trace      map[string]string `json:"trace,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

func groupKey(tenantID, contactID string) string {
	return tenantID + ":" + contactID
}

func encodeJob(payload queuePayload) (Job, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return Job{
		ID:       payload.ID,
		GroupKey: groupKey(payload.Message.TenantID, payload.Message.ContactID),
		Body:     string(body),
	}, nil
}
