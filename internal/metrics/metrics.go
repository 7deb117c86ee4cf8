// Package metrics exposes prometheus collectors for rewriter builds and
// relayed messages. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "topicrelay"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Rewriter builds
	builds          *prometheus.CounterVec   // Builds by outcome
	buildDuration   *prometheus.HistogramVec // Build duration by outcome
	rewriteFailures *prometheus.CounterVec   // Failed rewrite calls by schema

	// Relay traffic
	messages *prometheus.CounterVec // Messages by topic and direction
	bytes    *prometheus.CounterVec // Wire bytes by topic and direction
	dropped  *prometheus.CounterVec // Dropped messages by topic and reason
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewriter",
			Name:      "builds_total",
			Help:      "Total rewriter builds by outcome",
		}, []string{"outcome"}),

		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rewriter",
			Name:      "build_duration_seconds",
			Help:      "Time from first request to a resolved rewriter",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"outcome"}),

		rewriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewriter",
			Name:      "rewrite_failures_total",
			Help:      "Messages forwarded unmodified because the rewriter failed",
		}, []string{"schema"}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Relayed messages by topic and direction",
		}, []string{"topic", "direction"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Compressed payload bytes by topic and direction",
		}, []string{"topic", "direction"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "Messages dropped by topic and reason",
		}, []string{"topic", "reason"}),
	}

	m.registry.MustRegister(
		m.builds,
		m.buildDuration,
		m.rewriteFailures,
		m.messages,
		m.bytes,
		m.dropped,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// BuildFinished records a resolved rewriter build.
func (m *Metrics) BuildFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(outcome).Inc()
	m.buildDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RewriteFailed records a message forwarded unmodified after a rewriter error.
func (m *Metrics) RewriteFailed(schema string) {
	if m == nil {
		return
	}
	m.rewriteFailures.WithLabelValues(schema).Inc()
}

// MessageSent records a message written to a link.
func (m *Metrics) MessageSent(topic string, size int) {
	m.message(topic, "sent", size)
}

// MessageReceived records a message read from a link.
func (m *Metrics) MessageReceived(topic string, size int) {
	m.message(topic, "received", size)
}

func (m *Metrics) message(topic, direction string, size int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic, direction).Inc()
	m.bytes.WithLabelValues(topic, direction).Add(float64(size))
}

// MessageDropped records a message that was not relayed.
func (m *Metrics) MessageDropped(topic, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(topic, reason).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
