package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const metricPrefix = "homepilot_"

var (
	registerOnce sync.Once

	cyclesTotal    *prometheus.CounterVec
	cyclesRejected prometheus.Counter
	cycleDuration  prometheus.Histogram

	readFailures    prometheus.Counter
	deviationsTotal *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
)

// Init registers the pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		cyclesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_cycles_total",
				Help: "Total analysis cycles by status",
			},
			[]string{"status"},
		)
		cyclesRejected = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_cycles_rejected_total",
				Help: "Cycles rejected because another cycle was in flight",
			},
		)
		cycleDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analysis_cycle_duration_seconds",
				Help:    "Analysis cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		readFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "source_read_failures_total",
				Help: "Failed live value reads",
			},
		)
		deviationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deviations_total",
				Help: "Detected deviations by severity",
			},
			[]string{"severity"},
		)
		actionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "actions_total",
				Help: "Proposed actions by priority",
			},
			[]string{"priority"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Dispatched notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			cyclesTotal,
			cyclesRejected,
			cycleDuration,
			readFailures,
			deviationsTotal,
			actionsTotal,
			alertsTotal,
		)
	})
}

// ObserveCycle records the outcome of one analysis cycle.
func ObserveCycle(status string, duration time.Duration) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDuration.Observe(duration.Seconds())
}

// ObserveCycleRejected counts a trigger turned away by the run lock.
func ObserveCycleRejected() {
	if cyclesRejected == nil {
		return
	}
	cyclesRejected.Inc()
}

// ObserveReadFailures counts failed live reads.
func ObserveReadFailures(count int) {
	if readFailures == nil || count <= 0 {
		return
	}
	readFailures.Add(float64(count))
}

// ObserveDeviation counts one detected deviation.
func ObserveDeviation(severity string) {
	if deviationsTotal == nil {
		return
	}
	deviationsTotal.WithLabelValues(severity).Inc()
}

// ObserveAction counts one proposed action.
func ObserveAction(priority string) {
	if actionsTotal == nil {
		return
	}
	actionsTotal.WithLabelValues(priority).Inc()
}

// ObserveAlert counts one notification attempt.
func ObserveAlert(result string) {
	if alertsTotal == nil {
		return
	}
	alertsTotal.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log := logger.With().Str("component", "metrics").Logger()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
