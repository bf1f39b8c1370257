package bookings

import "github.com/wolfman30/booking-assistant/internal/scheduling"

// ValidateSelections is the gate every commit passes before touching
// persistence. A non-positive MaxSessionMinutes disables the length limit.
func ValidateSelections(tenant *scheduling.Tenant, selections []scheduling.Selection) error {
	if len(selections) == 0 {
		return ErrNoSelections
	}
	if tenant == nil || tenant.MaxSessionMinutes <= 0 {
		return nil
	}

	total := 0
	var offending *scheduling.Selection
	for i := range selections {
		total += selections[i].DurationMinutes
		if offending == nil && total > tenant.MaxSessionMinutes {
			offending = &selections[i]
		}
	}
	if offending == nil {
		return nil
	}
	return &SessionLengthError{
		TotalMinutes:  total,
		MaxMinutes:    tenant.MaxSessionMinutes,
		ExcessMinutes: total - tenant.MaxSessionMinutes,
		Offending:     *offending,
	}
}
