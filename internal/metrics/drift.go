// Package metrics holds the per-run diagnostics: the Weyl-symbol drift used
// as an energy conservation check, trajectory divergence and the Prometheus
// telemetry of a run.
package metrics

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/dynamo"
)

// Derivative differentiates f sampled on the strictly increasing grid t:
// second-order central differences inside, first-order one-sided
// differences at the ends, 0 for a single point.
func Derivative(f, t []float64) []float64 {
	n := len(f)
	d := make([]float64, n)
	if n < 2 {
		return d
	}
	d[0] = (f[1] - f[0]) / (t[1] - t[0])
	d[n-1] = (f[n-1] - f[n-2]) / (t[n-1] - t[n-2])
	for i := 1; i < n-1; i++ {
		hs := t[i] - t[i-1]
		hd := t[i+1] - t[i]
		d[i] = (hs*hs*f[i+1] + (hd*hd-hs*hs)*f[i] - hd*hd*f[i-1]) / (hs * hd * (hd + hs))
	}
	return d
}

// WeylDrift accumulates |dH_W/dt|² per grid point over trajectories. A
// conserving integration keeps it at 0.
type WeylDrift struct {
	name    string
	grid    []float64
	sq      []float64
	samples int
}

func NewWeylDrift(grid []float64) *WeylDrift {
	return &WeylDrift{
		name: "weyl_drift",
		grid: grid,
		sq:   make([]float64, len(grid)),
	}
}

func (w *WeylDrift) Name() string { return w.name }

// Observe evaluates the Weyl symbol along one trajectory.
func (w *WeylDrift) Observe(sym dynamo.WeylSymbol, states []dynamo.State) error {
	if len(states) != len(w.grid) {
		return fmt.Errorf("metrics: %d states on a grid of %d points", len(states), len(w.grid))
	}
	hw := make([]float64, len(states))
	for k, x := range states {
		hw[k] = sym.Weyl(x)
	}
	for k, d := range Derivative(hw, w.grid) {
		w.sq[k] += d * d
	}
	w.samples++
	return nil
}

// Sums are the local squared-derivative sums.
func (w *WeylDrift) Sums() []float64 { return w.sq }

// Value is the largest local RMS drift per trajectory.
func (w *WeylDrift) Value() float64 {
	if w.samples == 0 {
		return 0
	}
	peak := 0.0
	for _, s := range w.sq {
		peak = math.Max(peak, math.Sqrt(s/float64(w.samples)))
	}
	return peak
}

// ReduceDrift sums every rank's drift onto the coordinator in one
// collective and returns sqrt(total / (nt N²)) per grid point there, nil on
// every other rank.
func ReduceDrift(ctx context.Context, c comm.Comm, w *WeylDrift, nt, n int) ([]float64, error) {
	total, err := c.Reduce(ctx, w.sq)
	if err != nil {
		return nil, err
	}
	if c.Rank() != comm.Root {
		return nil, nil
	}
	scale := float64(nt) * float64(n) * float64(n)
	rms := make([]float64, len(total))
	for k, v := range total {
		rms[k] = math.Sqrt(v / scale)
	}
	return rms, nil
}
