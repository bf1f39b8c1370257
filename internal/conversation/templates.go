package conversation

import (
	"github.com/wolfman30/booking-assistant/internal/messaging/templates"
)

// Every template receives TenantName in addition to the data its state supplies.
var defaultTemplates = map[string]string{
	"welcome":        "Hi! Welcome to {{.TenantName}}. How can I help you today?",
	"choose_service": "Which service would you like to book?",
	"add_service":    "You have {{join .Services \", \"}} so far. Which service would you like to add?",
	"no_services":    "{{.TenantName}} has no services available for online booking right now.",
	"more_services":  "You've selected {{join .Services \", \"}} ({{.TotalMinutes}} min). Would you like to add another service?",
	"session_too_long": "Adding {{.Offending}} would make your visit {{.TotalMinutes}} minutes, " +
		"{{.ExcessMinutes}} over our {{.MaxMinutes}}-minute limit, so I've left it off.",
	"missing_services": "Let's start by choosing a service.",
	"choose_date":      "Which day works best for your {{.TotalMinutes}}-minute visit?",
	"no_dates":         "Sorry, there are no openings in the next {{.HorizonDays}} days.",
	"missing_date":     "Let's pick a day first.",
	"choose_time":      "Here are the open times on {{.Date}}:",
	"no_slots":         "There are no open times left on {{.Date}}. Please pick another day.",
	"missing_time":     "Let's pick a time first.",
	"confirm": "{{if .Rescheduling}}Move your {{join .Services \", \"}} to {{.Date}} at {{.Time}}?" +
		"{{else}}Please confirm: {{join .Services \", \"}} on {{.Date}} at {{.Time}}.{{end}}",
	"slot_taken": "Sorry, {{.Time}} on {{.Date}} was just taken.",
	"booked": "{{if .Rescheduled}}Done! Your {{join .Services \", \"}} is now on {{.Date}} at {{.Time}}." +
		"{{else}}You're booked! {{join .Services \", \"}} on {{.Date}} at {{.Time}}.{{end}}",
	"appointment_changed": "That appointment changed a moment ago. Here is the latest information.",
	"my_appointments":     "Which appointment would you like to manage?",
	"no_appointments":     "You have no upcoming appointments.",
	"manage_appointment":  "{{join .Services \", \"}} on {{.Date}} at {{.Time}}. What would you like to do?",
	"cancel_confirm":      "Cancel your {{join .Services \", \"}} on {{.Date}} at {{.Time}}?",
	"cancelled":           "Your appointment on {{.Date}} at {{.Time}} has been cancelled.",
	"faq":                 "What would you like to know?",
	"no_faq":              "There are no common questions on file yet.",
	"faq_answer":          "{{.Question}}\n{{.Answer}}",
	"handoff": "A member of the {{.TenantName}} team will reply shortly." +
		"{{if .Hours}}\nBusiness hours:\n{{join .Hours \"\\n\"}}{{end}}",
	"unrecognized": "Sorry, I didn't catch that.",
}

// DefaultTemplates returns a copy of the built-in message texts, for callers
// that override a few of them.
func DefaultTemplates() map[string]string {
	out := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		out[k] = v
	}
	return out
}

func parseTemplates(sources map[string]string) (*templates.Set, error) {
	if sources == nil {
		sources = defaultTemplates
	}
	return templates.NewSet(sources)
}
