// Package metrics exposes the supervisor's ambient observability
// surface: per-worker tick-duration histograms, attribute write-index
// counters, and a samples-lost counter, scraped over a /metrics HTTP
// endpoint. Carried as ambient overhead (SPEC_FULL §9) rather than a
// named component, the way a production Go service in this corpus
// would wire prometheus/client_golang even though no single example
// repo exercises it end to end — client_golang's promauto/promhttp
// entry points are used exactly as documented upstream.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors the supervisor and workers update.
type Registry struct {
	reg *prometheus.Registry

	TickDuration  *prometheus.HistogramVec
	WriteIndex    *prometheus.GaugeVec
	SamplesLost   *prometheus.CounterVec
	TriggerFired  *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector on a fresh
// registry (not the global DefaultRegisterer, so multiple sessions in
// the same test binary don't collide).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		TickDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vxcore",
			Name:      "worker_tick_duration_seconds",
			Help:      "Duration of one worker tick iteration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"}),
		WriteIndex: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vxcore",
			Name:      "attribute_write_index",
			Help:      "Most recent write index published for an attribute.",
		}, []string{"attribute"}),
		SamplesLost: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "vxcore",
			Name:      "attribute_samples_lost_total",
			Help:      "Samples a consumer failed to read before they were overwritten.",
		}, []string{"attribute"}),
		TriggerFired: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "vxcore",
			Name:      "trigger_fired_total",
			Help:      "Edge/level conditions that fired and sent a callback.",
		}, []string{"trigger"}),
	}
	return r
}

// Handler returns the http.Handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveTick records how long one tick of worker took.
func (r *Registry) ObserveTick(worker string, seconds float64) {
	r.TickDuration.WithLabelValues(worker).Observe(seconds)
}

// SetWriteIndex records the latest published index for name.
func (r *Registry) SetWriteIndex(name string, idx int64) {
	r.WriteIndex.WithLabelValues(name).Set(float64(idx))
}

// AddSamplesLost increments the loss counter for name by n.
func (r *Registry) AddSamplesLost(name string, n int) {
	r.SamplesLost.WithLabelValues(name).Add(float64(n))
}

// IncTriggerFired increments the fired counter for name.
func (r *Registry) IncTriggerFired(name string) {
	r.TriggerFired.WithLabelValues(name).Inc()
}
