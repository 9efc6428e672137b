// Package metrics records per-stage row counts and durations of a
// pipeline run and pushes them to a Prometheus Pushgateway when one is
// configured. A batch job has no scrape endpoint, so metrics live in a
// private registry for the duration of the run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

const namespace = "hotdog_etl"

// Run holds the metrics of one pipeline run.
type Run struct {
	registry *prometheus.Registry

	// RowsTotal counts rows by stage and outcome (inserted, skipped).
	RowsTotal *prometheus.CounterVec

	// StageDuration is the wall time of each stage.
	StageDuration *prometheus.GaugeVec

	// StageFailures counts failed stages by error kind.
	StageFailures *prometheus.CounterVec

	// LastSuccess is the unix time the run finished without failures.
	LastSuccess prometheus.Gauge
}

// NewRun creates the metrics of a run in a fresh registry.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Rows processed by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of the last execution of each stage",
			},
			[]string{"stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Failed stages by error kind",
			},
			[]string{"stage", "kind"},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that finished without failures",
			},
		),
	}
	r.registry.MustRegister(r.RowsTotal, r.StageDuration, r.StageFailures, r.LastSuccess)
	return r
}

// Registry returns the registry holding the run's metrics.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records the outcome of one stage.
func (r *Run) ObserveStage(stage string, inserted, skipped int64, elapsed time.Duration) {
	r.RowsTotal.WithLabelValues(stage, "inserted").Add(float64(inserted))
	r.RowsTotal.WithLabelValues(stage, "skipped").Add(float64(skipped))
	r.StageDuration.WithLabelValues(stage).Set(elapsed.Seconds())
}

// ObserveFailure records a failed stage.
func (r *Run) ObserveFailure(stage, kind string) {
	r.StageFailures.WithLabelValues(stage, kind).Inc()
}

// Succeeded marks the run as finished without failures.
func (r *Run) Succeeded(at time.Time) {
	r.LastSuccess.Set(float64(at.Unix()))
}

// Push sends the run's metrics to the Pushgateway at url under job,
// grouped by mode. An empty url is a no-op.
func (r *Run) Push(url, job, mode string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("mode", mode).
		Push()
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	logging.Debug().Str("pushgateway", url).Str("job", job).Msg("Metrics pushed")
	return nil
}
