// Package metrics exports Prometheus counters for remote queries, the
// annotation cache and rendered markers.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clslens"

// Recorder owns a registry and the collectors registered on it. It
// satisfies the observer interfaces of the remote client, the annotation
// builder and the lens engine.
type Recorder struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	markers       *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// New creates a Recorder with its own registry, including the Go runtime
// and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		// Labels: query (origins, crossrefs, callsites), outcome
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_queries_total",
			Help:      "Metadata queries by statement and outcome",
		}, []string{"query", "outcome"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_query_duration_seconds",
			Help:      "Metadata query latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}, []string{"query"}),
		// Labels: result (hit, miss)
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_cache_total",
			Help:      "Annotation cache lookups by result",
		}, []string{"result"}),
		markers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markers_total",
			Help:      "Rendered markers by kind",
		}, []string{"kind"}),
		// Labels: reason (save, watch, command)
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Annotation cache entries dropped by reason",
		}, []string{"reason"}),
	}
}

// Registry returns the registry backing the Recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveQuery records a finished metadata query.
func (r *Recorder) ObserveQuery(name, outcome string, elapsed time.Duration) {
	r.queries.WithLabelValues(name, outcome).Inc()
	r.queryDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records an annotation cache lookup.
func (r *Recorder) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

// ObserveInvalidation records dropped cache entries.
func (r *Recorder) ObserveInvalidation(reason string, entries int) {
	r.invalidations.WithLabelValues(reason).Add(float64(entries))
}

// ObserveMarker records one rendered marker.
func (r *Recorder) ObserveMarker(kind string) {
	r.markers.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("Metrics endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
