package scheduling

import (
	"context"
)

type fakeCatalog struct {
	tenants      map[string]*Tenant
	services     map[string][]Service
	rules        map[Weekday]Window
	exceptions   map[Date]Exception
	appointments map[Date][]Appointment
	err          error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tenants: map[string]*Tenant{
			"t1": {ID: "t1", Name: "Glow Clinic", MaxSessionMinutes: 120},
		},
		services:     map[string][]Service{},
		rules:        map[Weekday]Window{},
		exceptions:   map[Date]Exception{},
		appointments: map[Date][]Appointment{},
	}
}

func (f *fakeCatalog) Tenant(_ context.Context, tenantID string) (*Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants[tenantID], nil
}

func (f *fakeCatalog) ActiveServices(_ context.Context, tenantID string) ([]Service, error) {
	return f.services[tenantID], f.err
}

func (f *fakeCatalog) RuleFor(_ context.Context, tenantID string, weekday Weekday) (*Rule, error) {
	w, ok := f.rules[weekday]
	if !ok {
		return nil, f.err
	}
	return &Rule{TenantID: tenantID, Weekday: weekday, Window: w}, f.err
}

func (f *fakeCatalog) ExceptionFor(_ context.Context, _ string, date Date) (*Exception, error) {
	e, ok := f.exceptions[date]
	if !ok {
		return nil, f.err
	}
	return &e, f.err
}

func (f *fakeCatalog) AppointmentsOn(_ context.Context, _ string, date Date) ([]Appointment, error) {
	return f.appointments[date], f.err
}
