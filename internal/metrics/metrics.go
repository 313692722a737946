// Package metrics exposes mirroring activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tonimelisma/hotdeploy/internal/mirror"
)

const (
	namespace = "hotdeploy"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Collector implements mirror.Recorder and mirror.OverflowRecorder on top
// of a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	outcomes    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	overflows   *prometheus.CounterVec
	lastApplied *prometheus.GaugeVec
	alive       prometheus.Gauge
}

// NewCollector registers all metrics in registry. A nil registry gets a
// fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Processed filesystem changes by instance, kind and result.",
		}, []string{"instance", "kind", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Extra attempts made after a failed action.",
		}, []string{"instance"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overflows_total",
			Help:      "Times the watch facility dropped notifications.",
		}, []string{"instance"}),
		lastApplied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_applied_timestamp_seconds",
			Help:      "Unix time of the last change applied to the target.",
		}, []string{"instance"}),
		alive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances_alive",
			Help:      "Instances whose watch loop is still running.",
		}),
	}

	registry.MustRegister(c.outcomes, c.retries, c.overflows, c.lastApplied, c.alive)

	return c
}

// Record implements mirror.Recorder.
func (c *Collector) Record(_ context.Context, o mirror.Outcome) {
	c.outcomes.WithLabelValues(o.Instance, o.Kind.String(), o.Result.String()).Inc()

	if o.Attempts > 1 {
		c.retries.WithLabelValues(o.Instance).Add(float64(o.Attempts - 1))
	}

	if o.Result == mirror.ResultApplied {
		c.lastApplied.WithLabelValues(o.Instance).Set(float64(o.At.Unix()))
	}
}

// RecordOverflow implements mirror.OverflowRecorder.
func (c *Collector) RecordOverflow(instance string) {
	c.overflows.WithLabelValues(instance).Inc()
}

// SetAlive records the number of live instances.
func (c *Collector) SetAlive(n int) {
	c.alive.Set(float64(n))
}

// Handler returns the /metrics handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Serve listens on addr and serves /metrics until ctx is canceled. The
// listener is bound before Serve returns control to the goroutine, so a bad
// address fails fast.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serving: %w", err)
	}

	return nil
}
