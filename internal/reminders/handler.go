package reminders

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Lister is the read side the admin handler needs.
type Lister interface {
	ListByTenant(ctx context.Context, tenantID string, status *Status, limit int) ([]Entry, error)
	Stats(ctx context.Context, tenantID string) (*Stats, error)
}

// Handler exposes the reminder queue for operators.
type Handler struct {
	store  Lister
	logger *logging.Logger
}

// NewHandler creates a reminders HTTP handler.
func NewHandler(store Lister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts endpoints under /admin/tenants/{tenantID}/reminders.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "missing tenant_id", http.StatusBadRequest)
		return
	}

	var filter *Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := Status(s)
		switch st {
		case StatusPending, StatusSent, StatusCancelled:
			filter = &st
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}

	entries, err := h.store.ListByTenant(r.Context(), tenantID, filter, 100)
	if err != nil {
		h.logger.Error("reminders handler: list", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, map[string]any{
		"reminders": entries,
		"count":     len(entries),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	stats, err := h.store.Stats(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("reminders handler: stats", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
