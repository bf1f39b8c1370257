package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []conversation.OutgoingMessage
	err  error
}

func (r *recordingMessenger) SendReply(_ context.Context, msg conversation.OutgoingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testReply() conversation.OutgoingMessage {
	return conversation.OutgoingMessage{
		TenantID:  "t1",
		ContactID: "c1",
		Content:   "Pick a service.",
		Choices: []matching.Choice{
			{ID: "svc_s1", Label: "Facial"},
			{ID: "svc_s2", Label: "Peel"},
		},
		State: "choose_service",
	}
}

func noBackoff(int) time.Duration { return 0 }

func TestFormatPlainText(t *testing.T) {
	got := FormatPlainText("  Pick a service. ", testReply().Choices)
	assert.Equal(t, "Pick a service.\n\n1. Facial\n2. Peel", got)
	assert.Equal(t, "Done.", FormatPlainText("Done.", nil))
}

func TestWebhookMessenger_ChoicesMode(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookMessenger(srv.URL, true, logging.Default())
	require.NoError(t, w.SendReply(context.Background(), testReply()))

	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "c1", got.ContactID)
	assert.Equal(t, "Pick a service.", got.Text)
	assert.Equal(t, "choose_service", got.State)
	require.Len(t, got.Choices, 2)
	assert.Equal(t, "svc_s2", got.Choices[1].ID)
}

func TestWebhookMessenger_TextModeFoldsChoices(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	w := NewWebhookMessenger(srv.URL, false, nil)
	require.NoError(t, w.SendReply(context.Background(), testReply()))

	assert.Empty(t, got.Choices)
	assert.Equal(t, "Pick a service.\n\n1. Facial\n2. Peel", got.Text)
}

func TestWebhookMessenger_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookMessenger(srv.URL, true, nil)
	w.backoff = noBackoff
	require.NoError(t, w.SendReply(context.Background(), testReply()))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhookMessenger_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWebhookMessenger(srv.URL, true, nil)
	w.backoff = noBackoff
	err := w.SendReply(context.Background(), testReply())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, maxSendAttempts, calls.Load())
}

func TestWebhookMessenger_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad contact", http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhookMessenger(srv.URL, true, nil)
	w.backoff = noBackoff
	err := w.SendReply(context.Background(), testReply())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad contact")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWebhookMessenger_Validation(t *testing.T) {
	ctx := context.Background()

	err := NewWebhookMessenger("", true, nil).SendReply(ctx, testReply())
	assert.Error(t, err)

	w := NewWebhookMessenger("http://127.0.0.1:1", true, nil)
	msg := testReply()
	msg.ContactID = ""
	assert.Error(t, w.SendReply(ctx, msg))

	msg = testReply()
	msg.Content = "   "
	assert.Error(t, w.SendReply(ctx, msg))
}

func TestFailoverMessenger(t *testing.T) {
	ctx := context.Background()

	t.Run("primary succeeds", func(t *testing.T) {
		primary := &recordingMessenger{}
		secondary := &recordingMessenger{}
		f := NewFailoverMessenger(primary, "webhook", secondary, "log", nil)
		require.NoError(t, f.SendReply(ctx, testReply()))
		assert.Len(t, primary.sent, 1)
		assert.Empty(t, secondary.sent)
	})

	t.Run("falls back on error", func(t *testing.T) {
		primary := &recordingMessenger{err: errors.New("down")}
		secondary := &recordingMessenger{}
		f := NewFailoverMessenger(primary, "webhook", secondary, "log", nil)
		require.NoError(t, f.SendReply(ctx, testReply()))
		assert.Len(t, secondary.sent, 1)
	})

	t.Run("fallback error is returned", func(t *testing.T) {
		fallbackErr := errors.New("also down")
		f := NewFailoverMessenger(&recordingMessenger{err: errors.New("down")}, "webhook", &recordingMessenger{err: fallbackErr}, "log", nil)
		assert.ErrorIs(t, f.SendReply(ctx, testReply()), fallbackErr)
	})

	t.Run("missing primary", func(t *testing.T) {
		f := NewFailoverMessenger(nil, "webhook", &recordingMessenger{}, "log", nil)
		assert.Error(t, f.SendReply(ctx, testReply()))
	})
}

func TestBuildReplyMessenger(t *testing.T) {
	m, name := BuildReplyMessenger(TransportConfig{}, nil, nil)
	assert.Equal(t, TransportLog, name)
	assert.IsType(t, &LogMessenger{}, m)
	require.NoError(t, m.SendReply(context.Background(), testReply()))

	m, name = BuildReplyMessenger(TransportConfig{WebhookURL: " http://example.invalid/hook "}, nil, nil)
	assert.Equal(t, "webhook+log", name)
	assert.IsType(t, &FailoverMessenger{}, m)
}
