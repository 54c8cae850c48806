// Package metrics exposes Prometheus instrumentation for routing, genesis,
// consultation, and evolution. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the metric vectors for one registry.
type Collector struct {
	routesTotal         *prometheus.CounterVec
	routeConfidence     *prometheus.HistogramVec
	genesisTotal        *prometheus.CounterVec
	consultationsTotal  *prometheus.CounterVec
	consultationLatency *prometheus.HistogramVec
	evolutionTotal      *prometheus.CounterVec
	population          *prometheus.GaugeVec
	saves               *prometheus.CounterVec
}

// NewCollector registers the metric vectors on reg under namespace.
// Registering two collectors with the same namespace on one registerer panics.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		routesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_total",
				Help:      "Routing decisions by pillar and outcome",
			},
			[]string{"pillar", "outcome"},
		),
		routeConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "route_confidence",
				Help:      "Confidence of winning routing matches",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"pillar"},
		),
		genesisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "genesis_total",
				Help:      "Genesis attempts by pillar and outcome",
			},
			[]string{"pillar", "outcome"},
		),
		consultationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consultations_total",
				Help:      "Consultations by outcome",
			},
			[]string{"outcome"},
		),
		consultationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consultation_duration_seconds",
				Help:      "Consultation latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		evolutionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evolution_total",
				Help:      "Evolution actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		population: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_specialists",
				Help:      "Active specialists per pillar",
			},
			[]string{"pillar"},
		),
		saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_saves_total",
				Help:      "Registry persistence passes by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
	}
}

// RecordRoute counts a routing decision. confidence is observed for hits only.
func (c *Collector) RecordRoute(pillar string, hit bool, confidence float64) {
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
		c.routeConfidence.WithLabelValues(pillar).Observe(confidence)
	}
	c.routesTotal.WithLabelValues(pillar, outcome).Inc()
}

func (c *Collector) RecordGenesis(pillar, outcome string) {
	if c == nil {
		return
	}
	c.genesisTotal.WithLabelValues(pillar, outcome).Inc()
}

func (c *Collector) RecordConsultation(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.consultationsTotal.WithLabelValues(outcome).Inc()
	c.consultationLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) RecordEvolution(kind, outcome string) {
	if c == nil {
		return
	}
	c.evolutionTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordSave(trigger string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.saves.WithLabelValues(trigger, outcome).Inc()
}

// SetPopulation replaces the per-pillar active gauge values.
func (c *Collector) SetPopulation(counts map[string]int) {
	if c == nil {
		return
	}
	for pillar, n := range counts {
		c.population.WithLabelValues(pillar).Set(float64(n))
	}
}
