package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for the scheduling flow.
type SchedulerMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	classifications *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	bookings        *prometheus.CounterVec
	flushTotal      *prometheus.CounterVec
	flushSize       prometheus.Histogram
	welcomes        *prometheus.CounterVec
	features        *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &SchedulerMetrics{
		inboundTotal:  counter("messaging", "inbound_total", "Inbound messages by gate outcome", "status"),
		outboundTotal: counter("messaging", "outbound_total", "Outbound sends by result", "status"),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		transitions:     counter("conversation", "transitions_total", "State machine transitions", "from", "to"),
		classifications: counter("conversation", "classifications_total", "Reply classifications", "context", "sentiment"),
		conflicts:       counter("bookings", "conflicts_total", "Slot conflicts by stage", "stage"),
		bookings:        counter("bookings", "created_total", "Bookings written", "kind"),
		flushTotal:      counter("sessions", "flush_total", "Session table writes", "trigger", "status"),
		flushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "sessions",
			Name:      "flush_sessions",
			Help:      "Sessions per table write",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 500},
		}),
		welcomes: counter("roster", "welcomes_total", "Automatic welcome sends", "status"),
		features: counter("conversation", "features_total", "Notable message features", "feature", "value"),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency, m.transitions, m.classifications,
		m.conflicts, m.bookings, m.flushTotal, m.flushSize, m.welcomes, m.features)
	return m
}

func (m *SchedulerMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *SchedulerMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *SchedulerMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *SchedulerMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *SchedulerMetrics) ObserveClassification(context, sentiment string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(context, sentiment).Inc()
}

func (m *SchedulerMetrics) ObserveConflict(stage string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(stage).Inc()
}

func (m *SchedulerMetrics) ObserveBooking(kind string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(kind).Inc()
}

// ObserveFlush records one session table write.
func (m *SchedulerMetrics) ObserveFlush(trigger string, sessions int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.flushTotal.WithLabelValues(trigger, status).Inc()
	m.flushSize.Observe(float64(sessions))
}

func (m *SchedulerMetrics) ObserveWelcome(status string) {
	if m == nil {
		return
	}
	m.welcomes.WithLabelValues(status).Inc()
}

func (m *SchedulerMetrics) ObserveFeature(feature, value string) {
	if m == nil {
		return
	}
	m.features.WithLabelValues(feature, value).Inc()
}
