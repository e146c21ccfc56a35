package metrics

import "github.com/san-kum/dtwa/internal/dynamo"

// Divergence counts trajectories that left the finite numbers. Diverged
// trajectories are not removed from the averages; this only reports them.
type Divergence struct {
	name     string
	diverged int
	samples  int
}

func NewDivergence() *Divergence {
	return &Divergence{name: "finite_fraction"}
}

func (d *Divergence) Name() string { return d.name }

// Observe reports whether the trajectory diverged.
func (d *Divergence) Observe(states []dynamo.State) bool {
	d.samples++
	for _, x := range states {
		if !x.IsValid() {
			d.diverged++
			return true
		}
	}
	return false
}

func (d *Divergence) Diverged() int { return d.diverged }

// Value is the fraction of finite trajectories.
func (d *Divergence) Value() float64 { return FiniteFraction(d.diverged, d.samples) }

// FiniteFraction is the share of total trajectories that stayed finite, 1
// when there were none.
func FiniteFraction(diverged, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	return 1.0 - float64(diverged)/float64(total)
}
