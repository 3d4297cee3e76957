package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine-wide Prometheus instruments: opportunity
// discovery throughput, execution outcomes, and gas spend.
type Metrics struct {
	pathsDiscovered    prometheus.Counter
	opportunitiesBuilt prometheus.Counter
	executionsTotal    *prometheus.CounterVec
	gasUsedTotal       prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		pathsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine",
			Name:      "paths_discovered_total",
			Help:      "Cyclic paths yielded by the path finder across all discover() calls.",
		}),
		opportunitiesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine",
			Name:      "opportunities_built_total",
			Help:      "MultiPathOpportunity instances successfully allocated.",
		}),
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbengine",
			Name:      "executions_total",
			Help:      "Recorded executions by outcome.",
		}, []string{"outcome"}),
		gasUsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine",
			Name:      "gas_used_total",
			Help:      "Cumulative gas units spent across recorded executions.",
		}),
	}
}

func (m *Metrics) recordExecution(success bool, gasUsed uint64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.executionsTotal.WithLabelValues(outcome).Inc()
	m.gasUsedTotal.Add(float64(gasUsed))
}

// Collectors returns every metric for registration with a
// prometheus.Registerer, mirroring the pack's metrics-on-construction
// pattern rather than relying on the global default registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.pathsDiscovered, m.opportunitiesBuilt, m.executionsTotal, m.gasUsedTotal}
}
