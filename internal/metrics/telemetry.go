package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the Prometheus collectors of one run on a private
// registry. It is safe for concurrent use by in-process ranks.
type Telemetry struct {
	reg *prometheus.Registry

	trajectories   *prometheus.CounterVec
	diverged       prometheus.Counter
	evaluations    prometheus.Counter
	steps          *prometheus.CounterVec
	trajectoryTime prometheus.Histogram
	runDuration    prometheus.Gauge
	ranks          prometheus.Gauge
}

func NewTelemetry() *Telemetry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Telemetry{
		reg: reg,
		trajectories: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dtwa_trajectories_total",
				Help: "Trajectories integrated, by rank",
			},
			[]string{"rank"},
		),
		diverged: f.NewCounter(prometheus.CounterOpts{
			Name: "dtwa_trajectories_diverged_total",
			Help: "Trajectories with non-finite states",
		}),
		evaluations: f.NewCounter(prometheus.CounterOpts{
			Name: "dtwa_rhs_evaluations_total",
			Help: "Right-hand side evaluations",
		}),
		steps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dtwa_solver_steps_total",
				Help: "Solver steps by outcome",
			},
			[]string{"outcome"},
		),
		trajectoryTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dtwa_trajectory_duration_seconds",
			Help:    "Wall time to integrate one trajectory",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "dtwa_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		ranks: f.NewGauge(prometheus.GaugeOpts{
			Name: "dtwa_ranks",
			Help: "Ranks in the group",
		}),
	}
}

// Registry exposes the collectors, e.g. for tests or a push gateway.
func (t *Telemetry) Registry() *prometheus.Registry { return t.reg }

// RecordTrajectory records one integrated trajectory.
func (t *Telemetry) RecordTrajectory(rank string, steps, rejected, forced, evals int, diverged bool, d time.Duration) {
	t.trajectories.WithLabelValues(rank).Inc()
	t.evaluations.Add(float64(evals))
	t.steps.WithLabelValues("accepted").Add(float64(steps))
	t.steps.WithLabelValues("rejected").Add(float64(rejected))
	t.steps.WithLabelValues("forced").Add(float64(forced))
	t.trajectoryTime.Observe(d.Seconds())
	if diverged {
		t.diverged.Inc()
	}
}

// RecordRun records the group size and wall time of a finished run.
func (t *Telemetry) RecordRun(size int, d time.Duration) {
	t.ranks.Set(float64(size))
	t.runDuration.Set(d.Seconds())
}

// WriteFile writes the text exposition format for a node_exporter
// textfile collector.
func (t *Telemetry) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, t.reg)
}
