// Package metrics exposes Prometheus counters for the bot.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaybot"

// Message kinds used as the "kind" label
const (
	KindText     = "text"
	KindCommand  = "command"
	KindCallback = "callback"
)

// LLM request results used as the "result" label
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// Metrics holds the bot collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	messages         *prometheus.CounterVec
	rateLimited      prometheus.Counter
	activityFailures prometheus.Counter
	llmRequests      *prometheus.CounterVec
	llmDuration      prometheus.Histogram
	chunksSent       prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound updates by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Messages rejected by the cooldown limiter.",
		}),
		activityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_failures_total",
			Help:      "Activity records that failed to persist.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language model requests by result.",
		}, []string{"result"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model request duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Response chunks delivered to Telegram.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.rateLimited,
		m.activityFailures,
		m.llmRequests,
		m.llmDuration,
		m.chunksSent,
	)

	return m
}

// RegisterRateLimitEntries exposes the limiter size as a gauge
func (m *Metrics) RegisterRateLimitEntries(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_entries",
		Help:      "Users currently tracked by the cooldown limiter.",
	}, func() float64 { return float64(size()) }))
}

func (m *Metrics) IncMessage(kind string) {
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRateLimited() {
	m.rateLimited.Inc()
}

func (m *Metrics) IncActivityFailure() {
	m.activityFailures.Inc()
}

// ObserveLLM records one language model call
func (m *Metrics) ObserveLLM(result string, elapsed time.Duration) {
	m.llmRequests.WithLabelValues(result).Inc()
	m.llmDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AddChunksSent(n int) {
	m.chunksSent.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve runs the /metrics endpoint until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
