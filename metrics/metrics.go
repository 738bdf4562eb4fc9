// Package metrics holds the worker's prometheus instruments and the server
// that exposes them.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tee_rng"

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	pollPasses          prometheus.Counter
	pendingRequests     prometheus.Gauge
	requestsFulfilled   prometheus.Counter
	requestsFailed      *prometheus.CounterVec
	softwareRandomness  prometheus.Counter
	readInconsistencies *prometheus.CounterVec
	registrations       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pollPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_passes_total",
			Help:      "Polling passes over the pending request queue.",
		}),
		pendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Pending requests seen in the last polling pass.",
		}),
		requestsFulfilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_fulfilled_total",
			Help:      "Requests answered with a committed respond transaction.",
		}),
		requestsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Requests that failed, by pipeline stage.",
		}, []string{"stage"}),
		softwareRandomness: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "software_randomness_total",
			Help:      "Random values generated without enclave key material.",
		}),
		readInconsistencies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_inconsistencies_total",
			Help:      "Cross-checked reads rejected because endpoints failed or disagreed.",
		}, []string{"method"}),
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Worker registration transactions, by attestation kind.",
		}, []string{"attested"}),
	}
}

func (m *Metrics) PollPass(pending int) {
	if m == nil {
		return
	}
	m.pollPasses.Inc()
	m.pendingRequests.Set(float64(pending))
}

func (m *Metrics) RequestFulfilled() {
	if m == nil {
		return
	}
	m.requestsFulfilled.Inc()
}

func (m *Metrics) RequestFailed(stage string) {
	if m == nil {
		return
	}
	m.requestsFailed.WithLabelValues(stage).Inc()
}

func (m *Metrics) SoftwareRandomness() {
	if m == nil {
		return
	}
	m.softwareRandomness.Inc()
}

func (m *Metrics) ReadInconsistency(method string) {
	if m == nil {
		return
	}
	m.readInconsistencies.WithLabelValues(method).Inc()
}

func (m *Metrics) Registration(attested bool) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(strconv.FormatBool(attested)).Inc()
}
