package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	httpmiddleware "github.com/wolfman30/booking-assistant/internal/http/middleware"
	"github.com/wolfman30/booking-assistant/internal/reminders"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/tenancy"
	"github.com/wolfman30/booking-assistant/internal/webchat"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebchatHandler      *webchat.Handler
	AvailabilityHandler *scheduling.Handler
	RemindersHandler    *reminders.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// OperatorJWTSecret enables the /admin routes.
	OperatorJWTSecret string

	// Inbound rate limit per tenant and client address.
	InboundRatePerSecond float64
	InboundBurst         int

	// ReadinessChecks back /ready; /health never touches dependencies.
	ReadinessChecks map[string]Check

	// DisableTracing skips the otelhttp wrapper.
	DisableTracing bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	inbound := func(h http.Handler) http.Handler { return h }
	if cfg.InboundRatePerSecond > 0 {
		inbound = httpmiddleware.RateLimit(cfg.InboundRatePerSecond, cfg.InboundBurst)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", readiness(cfg.ReadinessChecks, cfg.Logger))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ConversationHandler != nil {
			public.With(inbound).Post("/webhooks/{tenantID}/messages", cfg.ConversationHandler.Webhook)
		}
		if cfg.WebchatHandler != nil {
			public.Route("/chat", func(chat chi.Router) {
				chat.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				chat.With(inbound).Post("/message", cfg.WebchatHandler.HandleMessage)
			})
		}
	})

	// Tenant-scoped API routes
	r.Route("/tenants/{tenantID}", func(tenant chi.Router) {
		tenant.Use(tenancy.RequireTenant)
		if cfg.ConversationHandler != nil {
			tenant.With(inbound).Post("/conversations/turn", cfg.ConversationHandler.Turn)
		}
		if cfg.AvailabilityHandler != nil {
			tenant.Route("/availability", cfg.AvailabilityHandler.RegisterRoutes)
		}
	})

	// Operator routes
	if cfg.OperatorJWTSecret != "" && cfg.RemindersHandler != nil {
		r.Route("/admin/tenants/{tenantID}", func(admin chi.Router) {
			admin.Use(tenancy.RequireTenant)
			admin.Use(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))
			admin.Route("/reminders", cfg.RemindersHandler.RegisterRoutes)
		})
	}

	if cfg.DisableTracing {
		return r
	}
	return otelhttp.NewHandler(r, "booking-api",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
