// Package ensemble runs a Monte-Carlo ensemble of trajectories over the
// ranks of a group and reduces it to time-resolved averages.
//
// Every rank calls Evolve with the same arguments. The coordinator returns
// the dataset, every other rank returns nil. A run goes through the stages
// validate, partition, integrate, reduce and normalize; the first two depend
// only on global inputs so all ranks agree on failure before any collective
// call is made.
package ensemble

import (
	"time"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/integrators"
	"github.com/san-kum/dtwa/internal/metrics"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/sampling"
	"go.uber.org/zap"
)

// Model is the physical system of a run. It is shared read-only by every
// in-process rank.
type Model interface {
	// Sites is the lattice size N.
	Sites() int
	// NewSystem returns a right-hand side owned by the caller. Systems that
	// also implement dynamo.WeylSymbol get the drift diagnostic.
	NewSystem() dynamo.System
	Samplers() *sampling.Set
}

// Config is the immutable configuration of one run. It must be the same on
// every rank.
type Config struct {
	Trajectories int
	SeedOffset   int64
	Verbose      bool

	// NewIntegrator builds the stepper of one rank, RK45 when nil.
	NewIntegrator  func() dynamo.Integrator
	IntegratorName string
	Solver         integrators.Options

	Convention observables.Convention

	Logger    *zap.Logger
	Telemetry *metrics.Telemetry
	// Observers are called from every in-process rank and must be safe
	// for concurrent use.
	Observers []Observer
}

// DefaultConfig returns a config for nt trajectories with the default solver.
func DefaultConfig(nt int) Config {
	return Config{
		Trajectories:   nt,
		IntegratorName: "rk45",
		Solver:         integrators.DefaultOptions(),
		Convention:     observables.Connected,
	}
}

// RunContext is the position of the calling rank in its group.
type RunContext struct {
	Rank        int
	Size        int
	Coordinator bool
}

func NewRunContext(c comm.Comm) RunContext {
	return RunContext{Rank: c.Rank(), Size: c.Size(), Coordinator: c.Rank() == comm.Root}
}

// TrajectoryEvent describes one finished trajectory.
type TrajectoryEvent struct {
	Rank     int
	Seed     int64
	Done     int
	Local    int
	Info     integrators.Info
	Diverged bool
	Elapsed  time.Duration
}

// Observer is notified after every trajectory.
type Observer interface {
	OnTrajectory(ev TrajectoryEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev TrajectoryEvent)

func (f ObserverFunc) OnTrajectory(ev TrajectoryEvent) { f(ev) }
