// Package metrics exposes Prometheus counters for the cache, the Overcast
// session and the reconciliation policy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "overcast_sonos"

// Metrics owns a dedicated registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	cacheEvents     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	progressReports prometheus.Counter
	deletions       prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode_cache",
			Name:      "events_total",
			Help:      "Episode cache lookups and evictions by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overcast",
			Name:      "requests_total",
			Help:      "Requests sent to Overcast by operation and outcome.",
		}, []string{"operation", "outcome"}),
		progressReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_reports_total",
			Help:      "Playback offsets reported to Overcast.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finished_episode_deletions_total",
			Help:      "Episodes deleted because playback reached the end.",
		}),
	}

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.registry.MustRegister(m.cacheEvents, m.requests, m.progressReports, m.deletions)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hit counts a cache hit.
func (m *Metrics) Hit() { m.cacheEvents.WithLabelValues("hit").Inc() }

// Miss counts a cache miss.
func (m *Metrics) Miss() { m.cacheEvents.WithLabelValues("miss").Inc() }

// Evict counts a capacity eviction.
func (m *Metrics) Evict() { m.cacheEvents.WithLabelValues("evict").Inc() }

// ObserveRequest counts one request to Overcast.
func (m *Metrics) ObserveRequest(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
}

// ProgressReported counts a playback offset sent to Overcast.
func (m *Metrics) ProgressReported() { m.progressReports.Inc() }

// EpisodeDeleted counts an episode removed by reconciliation.
func (m *Metrics) EpisodeDeleted() { m.deletions.Inc() }
