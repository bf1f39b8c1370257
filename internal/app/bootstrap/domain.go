package bootstrap

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/booking-assistant/internal/bookings"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/reminders"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ReminderStore is the reminder queue as both the scheduler and the
// operator handler see it.
type ReminderStore interface {
	reminders.EntryStore
	reminders.Lister
}

// Domain is the wired scheduling stack shared by the binaries.
type Domain struct {
	Catalog   scheduling.Catalog
	Engine    *scheduling.Engine
	Bookings  *bookings.Service
	Reminders ReminderStore
	Machine   *conversation.Machine
}

// DomainDeps are the runtime resources a Domain is built over. A nil Pool
// selects the in-memory stand-ins, seeded from Seed when given.
type DomainDeps struct {
	Pool       *pgxpool.Pool
	Sessions   conversation.SessionStore
	Registerer prometheus.Registerer
	Seed       *Seed
}

// BuildDomain wires persistence, availability, booking commit, reminders
// and the conversation machine from config.
func BuildDomain(cfg *appconfig.Config, deps DomainDeps, logger *logging.Logger) (*Domain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = BuildSessionStore(nil, cfg.SessionTTL, logger)
	}

	var (
		catalog scheduling.Catalog
		repo    bookings.Repository
		store   ReminderStore
	)
	if deps.Pool != nil {
		catalog = scheduling.NewPostgresCatalog(deps.Pool)
		repo = bookings.NewPostgresRepository(deps.Pool)
		store = reminders.NewStore(deps.Pool)
	} else {
		logger.Warn("no database configured; using in-memory catalog and appointments")
		memRepo := bookings.NewMemoryRepository()
		memCatalog := scheduling.NewMemoryCatalog(memRepo)
		if deps.Seed != nil {
			deps.Seed.Apply(memCatalog)
			logger.Info("seeded in-memory catalog", "tenants", len(deps.Seed.Tenants))
		}
		catalog, repo, store = memCatalog, memRepo, reminders.NewMemoryStore()
	}

	reg := deps.Registerer
	engine := scheduling.NewEngine(catalog, logger,
		scheduling.WithSchedulingMetrics(metrics.NewSchedulingMetrics(reg)),
	)
	svc := bookings.NewService(repo, engine, logger,
		bookings.WithReminders(reminders.NewScheduler(store, cfg.ReminderLead, logger)),
		bookings.WithBookingMetrics(metrics.NewBookingMetrics(reg)),
	)
	flow := conversation.NewFlow(engine, svc, FlowConfig(cfg), logger)
	machine, err := conversation.NewMachine(flow, sessions, logger,
		conversation.WithSessionTTL(cfg.SessionTTL),
		conversation.WithConversationMetrics(metrics.NewConversationMetrics(reg)),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build conversation machine: %w", err)
	}

	return &Domain{
		Catalog:   catalog,
		Engine:    engine,
		Bookings:  svc,
		Reminders: store,
		Machine:   machine,
	}, nil
}

// FlowConfig maps config onto the conversation flow, keeping defaults for
// unset or non-positive values.
func FlowConfig(cfg *appconfig.Config) conversation.FlowConfig {
	out := conversation.DefaultFlowConfig()
	if cfg == nil {
		return out
	}
	if cfg.BookingHorizonDays > 0 {
		out.HorizonDays = cfg.BookingHorizonDays
	}
	if cfg.MaxDateChoices > 0 {
		out.MaxDateChoices = cfg.MaxDateChoices
	}
	if cfg.MaxTimeChoices > 0 {
		out.MaxTimeChoices = cfg.MaxTimeChoices
	}
	return out
}
