// Package metrics exposes Prometheus counters for routing and the loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zen-systems/mindgate/pkg/loop"
	"github.com/zen-systems/mindgate/pkg/router"
)

// Metrics implements router.Observer and loop.Observer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ProviderAttempts  *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	TransientFailures *prometheus.CounterVec
	FallbackAnswers   *prometheus.CounterVec
	LoopSteps         *prometheus.CounterVec
	LoopConfidence    prometheus.Histogram
	MemoryFailures    prometheus.Counter
}

// New registers the mindgate metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ProviderAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindgate_provider_attempts_total",
				Help: "Provider calls by result (ok, skipped or error kind)",
			},
			[]string{"provider", "result"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mindgate_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
			},
			[]string{"provider"},
		),
		TransientFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindgate_provider_transient_failures_total",
				Help: "Failed provider calls that would likely succeed if repeated later",
			},
			[]string{"provider"},
		),
		FallbackAnswers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindgate_fallback_answers_total",
				Help: "Steps answered by a provider other than the selected model's",
			},
			[]string{"provider"},
		),
		LoopSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindgate_loop_steps_total",
				Help: "Completed loop steps by task type and decision",
			},
			[]string{"task_type", "decision"},
		),
		LoopConfidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mindgate_loop_confidence",
				Help:    "Reflected confidence per step",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		MemoryFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mindgate_memory_failures_total",
				Help: "Memorize calls that failed during a step",
			},
		),
	}
}

// ObserveAttempt records one router attempt.
func (m *Metrics) ObserveAttempt(a router.Attempt) {
	provider := string(a.Provider)
	switch {
	case a.Skipped:
		m.ProviderAttempts.WithLabelValues(provider, "skipped").Inc()
		return
	case a.Kind != "":
		m.ProviderAttempts.WithLabelValues(provider, string(a.Kind)).Inc()
		if a.Transient {
			m.TransientFailures.WithLabelValues(provider).Inc()
		}
	default:
		m.ProviderAttempts.WithLabelValues(provider, "ok").Inc()
	}
	m.ProviderLatency.WithLabelValues(provider).Observe(a.Latency.Seconds())
}

// ObserveStep records one loop step.
func (m *Metrics) ObserveStep(res loop.StepResult) {
	m.LoopSteps.WithLabelValues(string(res.Analysis.Type), string(res.Decision)).Inc()
	m.LoopConfidence.Observe(res.Confidence)
	if res.MemoryErr != "" {
		m.MemoryFailures.Inc()
	}
	if o := res.Outcome; o.Succeeded() && o.FallbackDepth() > 0 {
		m.FallbackAnswers.WithLabelValues(string(o.Provider)).Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
