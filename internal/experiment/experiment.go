// Package experiment turns a config file into a ready-to-run ensemble.
package experiment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/config"
	"github.com/san-kum/dtwa/internal/ensemble"
	"github.com/san-kum/dtwa/internal/metrics"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/storage"
	"go.uber.org/zap"
)

type Experiment struct {
	cfg   *config.Config
	reg   *Registry
	model ensemble.Model
	run   ensemble.Config
}

func New(cfg *config.Config, reg *Registry) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Experiment{cfg: cfg, reg: reg}
}

// Setup builds the model and the run configuration. It does not validate
// trajectory count, time grid or scheme: those are checked by every rank
// inside the run so that all ranks fail together.
func (e *Experiment) Setup(log *zap.Logger, tel *metrics.Telemetry, observers ...ensemble.Observer) error {
	model, err := e.reg.GetModel(e.cfg.Model.Name, e.cfg)
	if err != nil {
		return err
	}
	newInteg, err := e.reg.IntegratorFactory(e.cfg.Solver.Integrator)
	if err != nil {
		return err
	}

	run := ensemble.DefaultConfig(e.cfg.Run.Trajectories)
	run.SeedOffset = e.cfg.Run.SeedOffset
	run.Verbose = e.cfg.Run.Verbose
	run.NewIntegrator = newInteg
	run.IntegratorName = e.cfg.Solver.Integrator
	run.Solver = e.cfg.SolverOptions()
	run.Convention = observables.Convention(e.cfg.Normalization)
	run.Logger = log
	run.Telemetry = tel
	run.Observers = observers

	e.model = model
	e.run = run
	return nil
}

func (e *Experiment) Model() ensemble.Model { return e.model }

// Run takes part in the ensemble as one rank of c.
func (e *Experiment) Run(ctx context.Context, c comm.Comm) (*observables.Dataset, error) {
	if e.model == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return ensemble.Evolve(ctx, c, e.model, e.run, e.cfg.Run.Time.Spec, sampling.Scheme(e.cfg.Run.Sampling))
}

// RunLocal runs the ensemble on workers in-process ranks and returns the
// coordinator's dataset.
func (e *Experiment) RunLocal(ctx context.Context, workers int) (*observables.Dataset, error) {
	if workers < 1 {
		workers = 1
	}
	var data *observables.Dataset
	err := comm.RunLocal(ctx, workers, func(ctx context.Context, c comm.Comm) error {
		d, err := e.Run(ctx, c)
		if c.Rank() == comm.Root {
			data = d
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Metadata describes a finished run for storage.
func (e *Experiment) Metadata(preset string, ranks int, data *observables.Dataset, elapsed time.Duration) storage.RunMetadata {
	m := e.cfg.Model
	meta := storage.RunMetadata{
		Preset:        preset,
		Trajectories:  e.cfg.Run.Trajectories,
		Ranks:         ranks,
		SeedOffset:    e.cfg.Run.SeedOffset,
		Sampling:      e.cfg.Run.Sampling,
		Integrator:    e.cfg.Solver.Integrator,
		Normalization: string(e.run.Convention),
		Sites:         m.Sites,
		Alpha:         m.Alpha,
		J:             m.J.Array(),
		H:             m.H.Array(),
		Kac:           m.Kac,
		Metrics:       map[string]float64{"elapsed_seconds": elapsed.Seconds()},
	}
	if meta.Normalization == "" {
		meta.Normalization = string(observables.Connected)
	}
	if s := e.cfg.Run.Time.Spec; s != nil {
		meta.Time = fmt.Sprint(s)
	}
	if data == nil {
		return meta
	}
	// the scheme that ran, which differs from the request after a fallback
	if data.Scheme != "" {
		meta.Sampling = data.Scheme
	}
	meta.Metrics["finite_fraction"] = metrics.FiniteFraction(data.Diverged, e.cfg.Run.Trajectories)
	if data.Drift != nil {
		meta.Metrics["max_drift"] = peak(data.Drift)
	}
	return meta
}

// peak is the largest value, NaN once any value is NaN.
func peak(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m || math.IsNaN(x) {
			m = x
		}
	}
	return m
}
