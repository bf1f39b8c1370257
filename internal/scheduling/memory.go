package scheduling

import (
	"context"
	"sort"
	"sync"
)

// AppointmentSource supplies the appointments a MemoryCatalog reports.
type AppointmentSource interface {
	AppointmentsOn(ctx context.Context, tenantID string, date Date) ([]Appointment, error)
}

// MemoryCatalog is an in-process Catalog used by tests and local runs
// without Postgres.
type MemoryCatalog struct {
	mu           sync.RWMutex
	tenants      map[string]Tenant
	services     map[string][]Service
	rules        map[string]map[Weekday]Window
	exceptions   map[string]map[Date]Exception
	appointments AppointmentSource
}

// NewMemoryCatalog creates an empty catalog. appts may be nil.
func NewMemoryCatalog(appts AppointmentSource) *MemoryCatalog {
	return &MemoryCatalog{
		tenants:      make(map[string]Tenant),
		services:     make(map[string][]Service),
		rules:        make(map[string]map[Weekday]Window),
		exceptions:   make(map[string]map[Date]Exception),
		appointments: appts,
	}
}

func (c *MemoryCatalog) PutTenant(t Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenants[t.ID] = t
}

func (c *MemoryCatalog) PutService(s Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.services[s.TenantID]
	for i := range list {
		if list[i].ID == s.ID {
			list[i] = s
			return
		}
	}
	c.services[s.TenantID] = append(list, s)
}

func (c *MemoryCatalog) PutRule(r Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rules[r.TenantID] == nil {
		c.rules[r.TenantID] = make(map[Weekday]Window)
	}
	c.rules[r.TenantID][r.Weekday] = r.Window
}

func (c *MemoryCatalog) PutException(e Exception) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exceptions[e.TenantID] == nil {
		c.exceptions[e.TenantID] = make(map[Date]Exception)
	}
	c.exceptions[e.TenantID][e.Date] = e
}

func (c *MemoryCatalog) Tenant(_ context.Context, tenantID string) (*Tenant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (c *MemoryCatalog) ActiveServices(_ context.Context, tenantID string) ([]Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Service
	for _, s := range c.services[tenantID] {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *MemoryCatalog) RuleFor(_ context.Context, tenantID string, weekday Weekday) (*Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.rules[tenantID][weekday]
	if !ok {
		return nil, nil
	}
	return &Rule{TenantID: tenantID, Weekday: weekday, Window: w}, nil
}

func (c *MemoryCatalog) ExceptionFor(_ context.Context, tenantID string, date Date) (*Exception, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.exceptions[tenantID][date]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *MemoryCatalog) AppointmentsOn(ctx context.Context, tenantID string, date Date) ([]Appointment, error) {
	if c.appointments == nil {
		return nil, nil
	}
	return c.appointments.AppointmentsOn(ctx, tenantID, date)
}
