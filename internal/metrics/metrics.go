package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the provider. Each collector owns its
// registry so tests and multiple providers in one process do not collide.
type Collector struct {
	registry *prometheus.Registry

	codesIssued   prometheus.Counter
	tokensIssued  *prometheus.CounterVec
	problemsTotal *prometheus.CounterVec
	accessors     prometheus.GaugeFunc
}

// NewCollector creates the metrics. accessorCount, when not nil, backs the
// oauth2_accessors gauge.
func NewCollector(accessorCount func() int) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		codesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "oauth2_authorization_codes_issued_total",
			Help: "Total number of authorization codes issued",
		}),
		tokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_tokens_issued_total",
			Help: "Total number of access/refresh token pairs issued",
		}, []string{"grant_type"}),
		problemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_problems_total",
			Help: "Total number of protocol problems returned",
		}, []string{"error", "problem"}),
	}
	if accessorCount != nil {
		c.accessors = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "oauth2_accessors",
			Help: "Number of grants currently held in memory",
		}, func() float64 { return float64(accessorCount()) })
	}
	return c
}

func (c *Collector) RecordCodeIssued() {
	c.codesIssued.Inc()
}

func (c *Collector) RecordTokensIssued(grantType string) {
	c.tokensIssued.WithLabelValues(grantType).Inc()
}

func (c *Collector) RecordProblem(errorCode, problem string) {
	c.problemsTotal.WithLabelValues(errorCode, problem).Inc()
}

// Registry exposes the underlying registry (used by tests and custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
