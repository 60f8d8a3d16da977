package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wardenbridge/types"
)

const namespace = "warden"

// Metrics counts relay passes, scanned events and action outcomes per role.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	passes       *prometheus.CounterVec
	events       *prometheus.CounterVec
	malformed    *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	head         *prometheus.GaugeVec
	passDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_passes_total",
			Help:      "Role passes by result (ok, error).",
		}, []string{"role", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_found_total",
			Help:      "Bridge events found in scan windows.",
		}, []string{"role"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_logs_total",
			Help:      "Logs matching the event signature that could not be decoded.",
		}, []string{"role"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_outcomes_total",
			Help:      "Terminal state of every relay action.",
		}, []string{"role", "outcome"}),
		head: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block",
			Help:      "Head block seen by the last scan.",
		}, []string{"role"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full relay pass over both roles.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(m.passes, m.events, m.malformed, m.outcomes, m.head, m.passDuration)
	return m
}

// ObserveRole records one finished role pass.
func (m *Metrics) ObserveRole(rr *types.RoleReport) {
	if m == nil || rr == nil {
		return
	}
	if rr.Error != "" {
		m.passes.WithLabelValues(rr.Role, "error").Inc()
		return
	}
	m.passes.WithLabelValues(rr.Role, "ok").Inc()
	m.head.WithLabelValues(rr.Role).Set(float64(rr.Head))
	m.events.WithLabelValues(rr.Role).Add(float64(rr.EventsFound))
	m.malformed.WithLabelValues(rr.Role).Add(float64(len(rr.Malformed)))
	for _, a := range rr.Actions {
		m.outcomes.WithLabelValues(rr.Role, string(a.Outcome)).Inc()
	}
}

func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}
