// Package observables turns integrated trajectories into ensemble averages.
//
// Every trajectory contributes, per grid point, the single-site sums
// S^a = Σ_i s^a_i and the pair sums Q^{ab} = Σ_{i≠j} (s^a_i s^b_j + g^{ab}_{ij}).
// Contributions are held in widened precision, summed per rank, reduced to
// the coordinator in one collective and normalized there exactly once.
package observables

import (
	"errors"
	"fmt"

	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/xfloat"
)

// Channel indexes the nine accumulated quantities of a grid point.
type Channel int

const (
	SX Channel = iota
	SY
	SZ
	SXX
	SYY
	SZZ
	SXY
	SXZ
	SYZ

	NumChannels
)

var channelNames = [NumChannels]string{"sx", "sy", "sz", "sxx", "syy", "szz", "sxy", "sxz", "syz"}

func (c Channel) String() string {
	if c < 0 || c >= NumChannels {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// pairs lists the (a, b) spin components of the pair channels.
var pairs = [...]struct {
	ch   Channel
	a, b int
}{
	{SXX, 0, 0}, {SYY, 1, 1}, {SZZ, 2, 2},
	{SXY, 0, 1}, {SXZ, 0, 2}, {SYZ, 1, 2},
}

var (
	ErrAlreadyNormalized = errors.New("observables: totals already normalized")
	ErrGridMismatch      = errors.New("observables: contribution does not match the time grid")
)

// Sums holds widened per-grid-point sums of all channels. A single
// trajectory's contribution and a rank's total share this type. Addition is
// commutative and associative, so processing order is irrelevant.
type Sums struct {
	steps    int
	acc      []xfloat.Acc
	diverged int
}

// NewSums returns zero sums over steps grid points.
func NewSums(steps int) *Sums {
	return &Sums{steps: steps, acc: make([]xfloat.Acc, steps*int(NumChannels))}
}

// Steps is the number of grid points.
func (s *Sums) Steps() int { return s.steps }

func (s *Sums) at(k int, ch Channel) *xfloat.Acc {
	return &s.acc[k*int(NumChannels)+int(ch)]
}

// Value rounds channel ch at grid point k to float64.
func (s *Sums) Value(k int, ch Channel) float64 {
	return s.at(k, ch).Float64()
}

// Add adds o into s.
func (s *Sums) Add(o *Sums) error {
	if o.steps != s.steps {
		return fmt.Errorf("%w: adding %d grid points to %d", ErrGridMismatch, o.steps, s.steps)
	}
	for i := range s.acc {
		s.acc[i].AddAcc(&o.acc[i])
	}
	s.diverged += o.diverged
	return nil
}

// AddDiverged counts n trajectories that left the finite numbers. The count
// travels with the sums through the reduction.
func (s *Sums) AddDiverged(n int) { s.diverged += n }

func (s *Sums) Diverged() int { return s.diverged }

// Contribute derives one trajectory's sums from its states, one per grid
// point, each laid out as 3N site values followed by the 9N² correlations.
func Contribute(states []dynamo.State, n int) (*Sums, error) {
	dim := 3*n + 9*n*n
	c := NewSums(len(states))
	for k, x := range states {
		if len(x) != dim {
			return nil, fmt.Errorf("%w: state %d has %d entries, want %d for N=%d", dynamo.ErrDimensionMismatch, k, len(x), dim, n)
		}
		site := x[:3*n]
		corr := x[3*n:]

		for a := 0; a < 3; a++ {
			acc := c.at(k, SX+Channel(a))
			for i := 0; i < n; i++ {
				acc.Add(site[a*n+i])
			}
		}

		for _, p := range pairs {
			acc := c.at(k, p.ch)
			sa := site[p.a*n : (p.a+1)*n]
			sb := site[p.b*n : (p.b+1)*n]
			g := corr[(p.a*3+p.b)*n*n : (p.a*3+p.b+1)*n*n]
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if i == j {
						continue
					}
					acc.AddProd(sa[i], sb[j])
					acc.Add(g[i*n+j])
				}
			}
		}
	}
	return c, nil
}

// Sum adds up a rank's contributions. With no contributions it returns zero
// sums over steps grid points, so an idle rank still joins the reduction
// with a correctly sized buffer.
func Sum(contribs []*Sums, steps int) (*Sums, error) {
	total := NewSums(steps)
	for _, c := range contribs {
		if err := total.Add(c); err != nil {
			return nil, err
		}
	}
	return total, nil
}
