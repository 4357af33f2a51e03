package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeadMetrics exposes counters for the lead capture flows.
type LeadMetrics struct {
	submissionsTotal   *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	throttledTotal     prometheus.Counter
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadgen",
			Subsystem: "submissions",
			Name:      "total",
			Help:      "Total lead submissions by type and outcome",
		}, []string{"type", "status"}),
		verificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadgen",
			Subsystem: "phone",
			Name:      "verifications_total",
			Help:      "Total phone verification attempts by outcome",
		}, []string{"outcome"}),
		throttledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadgen",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.verificationsTotal, m.throttledTotal)
	return m
}

func (m *LeadMetrics) ObserveSubmission(kind, status string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *LeadMetrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *LeadMetrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.throttledTotal.Inc()
}
