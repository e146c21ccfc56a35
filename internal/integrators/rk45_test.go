package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/dtwa/internal/dynamo"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) StateDim() int { return 2 }

func (h *harmonicOscillator) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (h *harmonicOscillator) Weyl(x dynamo.State) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

// stiffDecay forces step rejections for any reasonable initial step.
type stiffDecay struct{ rate float64 }

func (s *stiffDecay) StateDim() int { return 1 }
func (s *stiffDecay) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{-s.rate * x[0]}
}

func TestRK45_Step(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}
	x := dynamo.State{1.0, 0.0}
	dt := 0.01

	for i := 0; i < 1000; i++ {
		x = integrator.Step(sys, x, float64(i)*dt, dt)
	}

	if !x.IsValid() {
		t.Error("RK45 produced invalid state")
	}
}

func TestRK45_EnergyConservation(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	initialEnergy := sys.Weyl(x0)
	x := x0.Clone()
	dt := 0.01

	for i := 0; i < 10000; i++ {
		x = integrator.Step(sys, x, float64(i)*dt, dt)
	}

	drift := math.Abs(sys.Weyl(x)-initialEnergy) / initialEnergy
	if drift > 1e-6 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	res, err := integrator.StepAdaptive(sys, x0, 0, 0.1, 1e-12, dynamo.Tolerance{Rel: 1e-8, Abs: 1e-8})
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if !res.X.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if res.Dt <= 0 || res.Dt > 0.1 {
		t.Errorf("StepAdaptive took invalid dt: %f", res.Dt)
	}
	if res.Next <= 0 {
		t.Errorf("StepAdaptive suggested invalid dt: %f", res.Next)
	}
}

func TestRK45_RejectsLargeSteps(t *testing.T) {
	integrator := NewRK45()
	sys := &stiffDecay{rate: 50}

	res, err := integrator.StepAdaptive(sys, dynamo.State{1}, 0, 1.0, 1e-12, dynamo.Tolerance{Rel: 1e-8, Abs: 1e-8})
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if res.Rejected == 0 {
		t.Error("expected rejected attempts for a stiff step")
	}
	if res.Dt >= 1.0 {
		t.Errorf("expected a reduced step, got %f", res.Dt)
	}
	want := math.Exp(-50 * res.Dt)
	if math.Abs(res.X[0]-want) > 1e-6 {
		t.Errorf("x = %.10f, want %.10f", res.X[0], want)
	}
}

func TestRK45_ForcedAtMinimum(t *testing.T) {
	integrator := NewRK45()
	sys := &stiffDecay{rate: 1e4}

	res, err := integrator.StepAdaptive(sys, dynamo.State{1}, 0, 0.5, 0.5, dynamo.Tolerance{Rel: 1e-10, Abs: 1e-10})
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if !res.Forced {
		t.Error("expected forced acceptance at the minimum step")
	}
}

func TestRK45_ZeroStep(t *testing.T) {
	_, err := NewRK45().StepAdaptive(&harmonicOscillator{}, dynamo.State{1, 0}, 0, 0, 1e-12, dynamo.Tolerance{Rel: 1e-8})
	if err != dynamo.ErrStepTooSmall {
		t.Errorf("expected ErrStepTooSmall, got %v", err)
	}
}
