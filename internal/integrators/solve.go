package integrators

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/dtwa/internal/dynamo"
)

// Options controls Solve. Adaptive integrators use Tolerance, InitialDt,
// MaxDt and MinDt; fixed-step integrators sub-step every output interval
// with steps no longer than FixedDt.
type Options struct {
	Tolerance  dynamo.Tolerance
	InitialDt  float64
	MaxDt      float64
	MinDt      float64
	FixedDt    float64
	FullOutput bool
}

// DefaultOptions mirrors the LSODA defaults of scipy's odeint.
func DefaultOptions() Options {
	return Options{
		Tolerance: dynamo.Tolerance{Rel: 1.49012e-8, Abs: 1.49012e-8},
		MinDt:     1e-12,
		FixedDt:   1e-3,
	}
}

// Info reports solver internals. The counters are always filled; the
// per-output-point slices only with Options.FullOutput.
type Info struct {
	Steps       int
	Rejected    int
	Forced      int
	Evaluations int
	Diverged    bool

	// StepSizes[k] is the last step used to reach output point k.
	StepSizes []float64
	// CumulativeSteps[k] is the number of accepted steps taken up to output point k.
	CumulativeSteps []int
}

// Solution holds one state per output time.
type Solution struct {
	States []dynamo.State
	Info   Info
}

type countingSystem struct {
	dynamo.System
	evals int
}

func (c *countingSystem) Derive(x dynamo.State, t float64) dynamo.State {
	c.evals++
	return c.System.Derive(x, t)
}

// Solve integrates x0 from grid[0] and records the state at every grid
// point. Steps never cross an output time. A diverging trajectory is not an
// error: it is flagged in Info.Diverged and its values propagate.
func Solve(ctx context.Context, integ dynamo.Integrator, sys dynamo.System, x0 dynamo.State, grid []float64, opts Options) (*Solution, error) {
	if len(grid) == 0 {
		return nil, dynamo.ErrEmptyGrid
	}
	if len(x0) != sys.StateDim() {
		return nil, fmt.Errorf("%w: state has %d entries, system expects %d", dynamo.ErrDimensionMismatch, len(x0), sys.StateDim())
	}

	counted := &countingSystem{System: sys}
	sol := &Solution{States: make([]dynamo.State, 0, len(grid))}
	if opts.FullOutput {
		sol.Info.StepSizes = make([]float64, 0, len(grid))
		sol.Info.CumulativeSteps = make([]int, 0, len(grid))
	}

	x := x0.Clone()
	t := grid[0]
	record := func(lastDt float64) {
		sol.States = append(sol.States, x.Clone())
		if !x.IsValid() {
			sol.Info.Diverged = true
		}
		if opts.FullOutput {
			sol.Info.StepSizes = append(sol.Info.StepSizes, lastDt)
			sol.Info.CumulativeSteps = append(sol.Info.CumulativeSteps, sol.Info.Steps)
		}
	}
	record(0)

	adaptive, isAdaptive := integ.(dynamo.AdaptiveIntegrator)
	dt := initialStep(grid, opts)

	for k := 1; k < len(grid); k++ {
		select {
		case <-ctx.Done():
			return nil, &dynamo.SimulationError{Step: sol.Info.Steps, Time: t, Wrapped: fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err())}
		default:
		}

		target := grid[k]
		var lastDt float64
		var err error
		if isAdaptive {
			dt, lastDt, err = advanceAdaptive(adaptive, counted, &x, &t, target, dt, opts, &sol.Info)
		} else {
			lastDt, err = advanceFixed(integ, counted, &x, &t, target, opts, &sol.Info)
		}
		if err != nil {
			return nil, err
		}
		record(lastDt)
	}

	sol.Info.Evaluations = counted.evals
	return sol, nil
}

func initialStep(grid []float64, opts Options) float64 {
	dt := opts.InitialDt
	if dt <= 0 {
		dt = 1e-3
		if len(grid) > 1 {
			dt = math.Min(dt, (grid[1]-grid[0])/10)
		}
	}
	if opts.MaxDt > 0 {
		dt = math.Min(dt, opts.MaxDt)
	}
	return dt
}

func advanceAdaptive(integ dynamo.AdaptiveIntegrator, sys dynamo.System, x *dynamo.State, t *float64, target, dt float64, opts Options, info *Info) (float64, float64, error) {
	lastDt := 0.0
	for *t < target {
		remaining := target - *t
		h := dt
		last := false
		if h >= remaining {
			h = remaining
			last = true
		}

		res, err := integ.StepAdaptive(sys, *x, *t, h, opts.MinDt, opts.Tolerance)
		if err != nil {
			return dt, lastDt, &dynamo.SimulationError{Step: info.Steps, Time: *t, Wrapped: err}
		}

		prev := *t
		*x = res.X
		if last && res.Dt == h {
			*t = target
		} else {
			*t += res.Dt
		}
		if *t == prev {
			return dt, lastDt, &dynamo.SimulationError{Step: info.Steps, Time: prev, Wrapped: dynamo.ErrStepTooSmall}
		}
		lastDt = res.Dt
		info.Steps++
		info.Rejected += res.Rejected
		if res.Forced {
			info.Forced++
		}

		// a step shortened to land on the output time says nothing about the
		// step the dynamics allow, keep the larger suggestion
		if last && res.Rejected == 0 {
			dt = math.Max(dt, res.Next)
		} else {
			dt = res.Next
		}
		if opts.MaxDt > 0 {
			dt = math.Min(dt, opts.MaxDt)
		}
		if dt < opts.MinDt {
			dt = opts.MinDt
		}
		if dt <= 0 {
			return dt, lastDt, &dynamo.SimulationError{Step: info.Steps, Time: *t, Wrapped: dynamo.ErrStepTooSmall}
		}
	}
	return dt, lastDt, nil
}

func advanceFixed(integ dynamo.Integrator, sys dynamo.System, x *dynamo.State, t *float64, target float64, opts Options, info *Info) (float64, error) {
	if opts.FixedDt <= 0 {
		return 0, &dynamo.SimulationError{Step: info.Steps, Time: *t, Wrapped: dynamo.ErrStepTooSmall}
	}
	span := target - *t
	n := int(math.Ceil(span / opts.FixedDt))
	if n < 1 {
		n = 1
	}
	h := span / float64(n)
	start := *t
	for i := 0; i < n; i++ {
		*x = integ.Step(sys, *x, start+float64(i)*h, h)
		info.Steps++
	}
	*t = target
	return h, nil
}
