package integrators

import "github.com/san-kum/dtwa/internal/dynamo"

// Tableau holds the coefficients of an explicit Runge-Kutta method. Stage s
// derives at t + C[s]*dt from x + dt*Σ_j A[s][j]*k_j, and the step is
// x + dt*Σ_s B[s]*k_s. A must be strictly lower triangular.
type Tableau struct {
	A [][]float64
	B []float64
	C []float64
}

var (
	ForwardEuler = Tableau{
		A: [][]float64{nil},
		B: []float64{1},
		C: []float64{0},
	}
	ClassicRK4 = Tableau{
		A: [][]float64{nil, {0.5}, {0, 0.5}, {0, 0, 1}},
		B: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		C: []float64{0, 0.5, 0.5, 1},
	}
)

// Explicit is a fixed-step stepper for one tableau. Stage buffers are kept
// between steps, so a value belongs to one trajectory at a time.
type Explicit struct {
	tab   Tableau
	k     []dynamo.State
	stage dynamo.State
}

func NewExplicit(tab Tableau) *Explicit {
	return &Explicit{tab: tab}
}

func NewEuler() *Explicit { return NewExplicit(ForwardEuler) }

func NewRK4() *Explicit { return NewExplicit(ClassicRK4) }

// Stages is the number of derivative evaluations per step.
func (e *Explicit) Stages() int { return len(e.tab.B) }

func (e *Explicit) ensureScratch(n int) {
	if len(e.stage) == n && len(e.k) == len(e.tab.B) {
		return
	}
	e.k = make([]dynamo.State, len(e.tab.B))
	for s := range e.k {
		e.k[s] = make(dynamo.State, n)
	}
	e.stage = make(dynamo.State, n)
}

func (e *Explicit) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	e.ensureScratch(n)

	for s, row := range e.tab.A {
		copy(e.stage, x)
		for j, a := range row {
			if a == 0 {
				continue
			}
			for i := range e.stage {
				e.stage[i] += dt * a * e.k[j][i]
			}
		}
		copy(e.k[s], sys.Derive(e.stage, t+e.tab.C[s]*dt))
	}

	next := make(dynamo.State, n)
	copy(next, x)
	for s, b := range e.tab.B {
		for i := range next {
			next[i] += dt * b * e.k[s][i]
		}
	}
	return next
}
