package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Enqueuer accepts turns for asynchronous processing. Publisher implements it.
type Enqueuer interface {
	EnqueueMessage(ctx context.Context, msg IncomingMessage) (string, error)
}

// Handler exposes the conversation over HTTP.
type Handler struct {
	enqueuer Enqueuer
	turns    TurnHandler
	logger   *logging.Logger
}

// NewHandler creates a conversation handler. Either dependency may be nil,
// in which case its route answers 503.
func NewHandler(enqueuer Enqueuer, turns TurnHandler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{enqueuer: enqueuer, turns: turns, logger: logger}
}

type inboundRequest struct {
	ContactID  string `json:"contact_id"`
	Text       string `json:"text"`
	SelectedID string `json:"selected_id"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (IncomingMessage, bool) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode inbound message", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return IncomingMessage{}, false
	}
	msg := IncomingMessage{
		TenantID:   chi.URLParam(r, "tenantID"),
		ContactID:  strings.TrimSpace(req.ContactID),
		Text:       req.Text,
		SelectedID: strings.TrimSpace(req.SelectedID),
		ReceivedAt: time.Now().UTC(),
	}
	if msg.TenantID == "" || msg.ContactID == "" {
		http.Error(w, "tenant and contact_id are required", http.StatusBadRequest)
		return IncomingMessage{}, false
	}
	return msg, true
}

// Webhook handles POST /webhooks/{tenantID}/messages by queueing the turn.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		http.Error(w, "Queue unavailable", http.StatusServiceUnavailable)
		return
	}
	msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	jobID, err := h.enqueuer.EnqueueMessage(r.Context(), msg)
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "tenant_id", msg.TenantID)
		http.Error(w, "Failed to accept message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// Turn handles POST /tenants/{tenantID}/conversations/turn synchronously and
// returns the reply in the response body.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		http.Error(w, "Conversation unavailable", http.StatusServiceUnavailable)
		return
	}
	msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.turns.HandleTurn(r.Context(), msg)
	if err != nil {
		if errors.Is(err, ErrUnknownTenant) {
			http.Error(w, "Unknown tenant", http.StatusNotFound)
			return
		}
		h.logger.Error("conversation turn failed", "error", err, "tenant_id", msg.TenantID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
