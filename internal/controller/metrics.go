package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts handled events and provider calls. All methods are nil-safe.
type Metrics struct {
	events *prometheus.CounterVec
	dnsOps *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subdomain_keeper",
			Name:      "events_total",
			Help:      "Lifecycle events handled, by event and outcome status",
		}, []string{"event", "status"}),
		dnsOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subdomain_keeper",
			Name:      "dns_operations_total",
			Help:      "DNS provider calls, by operation and result",
		}, []string{"operation", "result"}),
	}

	if reg != nil {
		m.events = registerOrReuse(reg, m.events).(*prometheus.CounterVec)
		m.dnsOps = registerOrReuse(reg, m.dnsOps).(*prometheus.CounterVec)
	}
	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordEvent counts one handled event.
func (m *Metrics) RecordEvent(event string, out Outcome, err error) {
	if m == nil {
		return
	}
	status := string(out.Status)
	if err != nil {
		status = "Error"
	}
	m.events.WithLabelValues(event, status).Inc()
}

// RecordDNS counts one provider call.
func (m *Metrics) RecordDNS(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dnsOps.WithLabelValues(operation, result).Inc()
}
