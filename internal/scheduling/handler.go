package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const (
	defaultDateWindow = 14
	maxDateWindow     = 60
)

// Handler exposes read-only availability for a tenant.
type Handler struct {
	engine *Engine
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
		now:    func() time.Time { return WallClock(time.Now()) },
	}
}

// RegisterRoutes mounts endpoints under /tenants/{tenantID}/availability.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.slots)
	r.Get("/dates", h.dates)
}

type slotView struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// slots handles GET ?date=YYYY-MM-DD&services=a,b (or &minutes=N).
func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	date, err := ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	minutes, ok := h.totalMinutes(w, r, tenantID)
	if !ok {
		return
	}

	slots, err := h.engine.AvailableSlots(r.Context(), tenantID, date, minutes)
	if err != nil {
		h.fail(w, tenantID, err)
		return
	}
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, slotView{Start: s.Start, End: s.End})
	}
	writeJSON(w, map[string]any{
		"date":          date,
		"weekday":       date.Weekday().String(),
		"total_minutes": minutes,
		"slots":         views,
	})
}

// dates handles GET /dates?services=a,b&days=N.
func (h *Handler) dates(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	days := defaultDateWindow
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxDateWindow {
			http.Error(w, "days must be between 1 and 60", http.StatusBadRequest)
			return
		}
		days = n
	}
	minutes, ok := h.totalMinutes(w, r, tenantID)
	if !ok {
		return
	}

	open, err := h.engine.OpenDates(r.Context(), tenantID, h.now(), days, minutes, 0)
	if err != nil {
		h.fail(w, tenantID, err)
		return
	}
	if open == nil {
		open = []Date{}
	}
	writeJSON(w, map[string]any{
		"total_minutes": minutes,
		"dates":         open,
	})
}

// totalMinutes sums the durations of the requested active services, or takes
// an explicit minutes parameter.
func (h *Handler) totalMinutes(w http.ResponseWriter, r *http.Request, tenantID string) (int, bool) {
	q := r.URL.Query()
	if raw := q.Get("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "minutes must be a positive integer", http.StatusBadRequest)
			return 0, false
		}
		return n, true
	}

	ids := strings.Split(q.Get("services"), ",")
	active, err := h.engine.Catalog().ActiveServices(r.Context(), tenantID)
	if err != nil {
		h.fail(w, tenantID, err)
		return 0, false
	}
	byID := make(map[string]Service, len(active))
	for _, s := range active {
		byID[s.ID] = s
	}
	var selections []Selection
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		svc, ok := byID[id]
		if !ok {
			http.Error(w, "unknown service: "+id, http.StatusBadRequest)
			return 0, false
		}
		selections = append(selections, svc.Selection())
	}
	if len(selections) == 0 {
		http.Error(w, "services or minutes is required", http.StatusBadRequest)
		return 0, false
	}
	return TotalMinutes(selections), true
}

func (h *Handler) fail(w http.ResponseWriter, tenantID string, err error) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		http.Error(w, "unknown tenant", http.StatusNotFound)
	case errors.Is(err, ErrInvalidDuration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("availability handler failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
