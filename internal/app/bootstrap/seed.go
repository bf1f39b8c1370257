package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// Seed is a JSON fixture of tenants for local runs without Postgres.
type Seed struct {
	Tenants []SeedTenant `json:"tenants"`
}

// SeedTenant carries a tenant with its services, weekday rules and date
// exceptions. Without explicit rules, business hours double as rules.
type SeedTenant struct {
	scheduling.Tenant
	Services   []scheduling.Service `json:"services"`
	Rules      []SeedRule           `json:"rules,omitempty"`
	Exceptions []SeedException      `json:"exceptions,omitempty"`
}

type SeedRule struct {
	Weekday scheduling.Weekday `json:"weekday"`
	Start   scheduling.Clock   `json:"start"`
	End     scheduling.Clock   `json:"end"`
}

type SeedException struct {
	Date  scheduling.Date          `json:"date"`
	Kind  scheduling.ExceptionKind `json:"kind"`
	Start scheduling.Clock         `json:"start,omitempty"`
	End   scheduling.Clock         `json:"end,omitempty"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("bootstrap: decode seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate rejects fixtures the engine could not use.
func (s *Seed) Validate() error {
	for _, t := range s.Tenants {
		if t.ID == "" {
			return fmt.Errorf("bootstrap: seed tenant without id")
		}
		for _, svc := range t.Services {
			if svc.ID == "" || svc.DurationMinutes <= 0 {
				return fmt.Errorf("bootstrap: seed tenant %s: service %q needs an id and a positive duration", t.ID, svc.Name)
			}
		}
		for _, r := range t.Rules {
			if _, err := scheduling.ParseWeekday(int(r.Weekday)); err != nil {
				return fmt.Errorf("bootstrap: seed tenant %s: %w", t.ID, err)
			}
			if !(scheduling.Window{Start: r.Start, End: r.End}).Valid() {
				return fmt.Errorf("bootstrap: seed tenant %s: invalid rule window for %s", t.ID, r.Weekday)
			}
		}
		for _, e := range t.Exceptions {
			switch e.Kind {
			case scheduling.ExceptionBlocked:
			case scheduling.ExceptionSpecialHours:
				if !(scheduling.Window{Start: e.Start, End: e.End}).Valid() {
					return fmt.Errorf("bootstrap: seed tenant %s: invalid special hours on %s", t.ID, e.Date)
				}
			default:
				return fmt.Errorf("bootstrap: seed tenant %s: unknown exception kind %q", t.ID, e.Kind)
			}
		}
	}
	return nil
}

// Apply loads the fixture into an in-memory catalog.
func (s *Seed) Apply(catalog *scheduling.MemoryCatalog) {
	for _, t := range s.Tenants {
		catalog.PutTenant(t.Tenant)
		for _, svc := range t.Services {
			svc.TenantID = t.ID
			catalog.PutService(svc)
		}
		if len(t.Rules) == 0 {
			for day, w := range t.BusinessHours {
				catalog.PutRule(scheduling.Rule{TenantID: t.ID, Weekday: day, Window: w})
			}
		}
		for _, r := range t.Rules {
			catalog.PutRule(scheduling.Rule{
				TenantID: t.ID,
				Weekday:  r.Weekday,
				Window:   scheduling.Window{Start: r.Start, End: r.End},
			})
		}
		for _, e := range t.Exceptions {
			catalog.PutException(scheduling.Exception{
				TenantID: t.ID,
				Date:     e.Date,
				Kind:     e.Kind,
				Window:   scheduling.Window{Start: e.Start, End: e.End},
			})
		}
	}
}
