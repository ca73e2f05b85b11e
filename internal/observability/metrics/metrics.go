package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics exposes counters/histograms for webhook relay flows.
type RelayMetrics struct {
	webhookEvents *prometheus.CounterVec
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	typingSignals *prometheus.CounterVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound Messenger messaging events by boundary outcome",
		}, []string{"outcome"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "turn",
			Name:      "total",
			Help:      "Completed turns by terminal state",
		}, []string{"state"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "Wall time from receipt to terminal state",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 900},
		}, []string{"state"}),
		typingSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "typing",
			Name:      "signals_total",
			Help:      "typing_on signals sent to the platform",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookEvents, m.turnsTotal, m.turnDuration, m.typingSignals)
	return m
}

// ObserveWebhookEvent counts one messaging event at the webhook boundary
// (accepted, ignored, rejected).
func (m *RelayMetrics) ObserveWebhookEvent(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Add(float64(n))
}

func (m *RelayMetrics) ObserveTurn(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
	m.turnDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

func (m *RelayMetrics) ObserveTypingSignal(ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.typingSignals.WithLabelValues(status).Inc()
}
