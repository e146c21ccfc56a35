package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Concat joins blocks into a single state vector.
func Concat(blocks ...[]float64) State {
	n := 0
	for _, b := range blocks {
		n += len(b)
	}
	out := make(State, 0, n)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// System is the right-hand side dx/dt = f(x, t). Model parameters are bound
// into the implementation; Derive must not retain x.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// WeylSymbol evaluates the classical phase-space symbol of the Hamiltonian.
// It is only used as an energy conservation diagnostic.
type WeylSymbol interface {
	Weyl(x State) float64
}

type Integrator interface {
	Step(sys System, x State, t float64, dt float64) State
}

// Tolerance is the mixed relative/absolute error target of adaptive steppers.
type Tolerance struct {
	Rel float64
	Abs float64
}

// StepResult describes one accepted adaptive step.
type StepResult struct {
	X        State
	Dt       float64 // step actually taken
	Next     float64 // suggested next step
	Rejected int
	Forced   bool // accepted at the minimum step despite the error estimate
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, minDt float64, tol Tolerance) (StepResult, error)
}
