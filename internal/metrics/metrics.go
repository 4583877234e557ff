package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics counts dispatched actions and relayed events.
type SchedulingMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "requests_total",
			Help:      "Scheduling requests by action and outcome",
		}, []string{"action", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "request_duration_seconds",
			Help:      "Latency of scheduling requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "events_published_total",
			Help:      "Event log rows relayed to the broker",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.eventsPublished)
	return m
}

func (m *SchedulingMetrics) ObserveRequest(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(action, outcome).Inc()
	m.requestDuration.WithLabelValues(action).Observe(seconds)
}

func (m *SchedulingMetrics) ObservePublished(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsPublished.WithLabelValues(status).Add(float64(n))
}
