package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "booking"

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// ConversationMetrics exposes counters/histograms for conversation turns.
type ConversationMetrics struct {
	turnsTotal  *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by entered state and how the input was resolved",
		}, []string{"state", "resolution"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a single conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	registerer(reg).MustRegister(m.turnsTotal, m.turnLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(state, resolution string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, resolution).Inc()
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

// SchedulingMetrics tracks availability computation.
type SchedulingMetrics struct {
	slotQuery *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotQuery: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slots_seconds",
			Help:      "Latency of slot computation, labelled by whether any slot was found",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	registerer(reg).MustRegister(m.slotQuery)
	return m
}

func (m *SchedulingMetrics) ObserveSlotQuery(seconds float64, slots int) {
	if m == nil {
		return
	}
	result := "open"
	if slots == 0 {
		result = "empty"
	}
	m.slotQuery.WithLabelValues(result).Observe(seconds)
}

// BookingMetrics counts commit attempts.
type BookingMetrics struct {
	commitsTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "commits_total",
			Help:      "Booking commits by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
	registerer(reg).MustRegister(m.commitsTotal)
	return m
}

func (m *BookingMetrics) ObserveCommit(operation, outcome string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(operation, outcome).Inc()
}

// ReminderMetrics counts processed reminder entries.
type ReminderMetrics struct {
	processedTotal *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "processed_total",
			Help:      "Due reminder entries handed to delivery",
		}, []string{"status"}),
	}
	registerer(reg).MustRegister(m.processedTotal)
	return m
}

func (m *ReminderMetrics) ObserveProcessed(status string) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(status).Inc()
}

// MessagingMetrics counts outbound deliveries.
type MessagingMetrics struct {
	outboundTotal *prometheus.CounterVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound messages by delivery status and rendering mode",
		}, []string{"status", "mode"}),
	}
	registerer(reg).MustRegister(m.outboundTotal)
	return m
}

func (m *MessagingMetrics) ObserveOutbound(status, mode string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status, mode).Inc()
}
