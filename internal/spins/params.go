// Package spins implements the long-range XYZ spin chain evolved by the
// second-order BBGKY equations of the discrete truncated Wigner method.
//
// The Hamiltonian is
//
//	H = Σ_{i<j} Σ_a (J_ij J^a / norm) σ^a_i σ^a_j + Σ_i h·σ_i
//
// with J_ij = |i-j|^-α on an open chain.
package spins

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dtwa/internal/sampling"
)

var ErrInvalidParams = errors.New("spins: invalid model parameters")

// Options are the physical inputs of a model.
type Options struct {
	N     int
	Alpha float64
	J     [3]float64
	H     [3]float64
	// Kac divides the couplings by the mean coupling per site so the
	// energy stays extensive for α below the dimension.
	Kac  bool
	Axis sampling.Axis
}

// Params are the precomputed, read-only model data shared by every rank.
type Params struct {
	Options

	couplings []float64
	norm      float64
}

func NewParams(opts Options) (*Params, error) {
	if opts.N < 1 {
		return nil, fmt.Errorf("%w: lattice size %d", ErrInvalidParams, opts.N)
	}
	if math.IsNaN(opts.Alpha) || math.IsInf(opts.Alpha, 0) || opts.Alpha < 0 {
		return nil, fmt.Errorf("%w: exponent %v", ErrInvalidParams, opts.Alpha)
	}
	if opts.Axis < sampling.X || opts.Axis > sampling.Z {
		return nil, fmt.Errorf("%w: axis %v", ErrInvalidParams, opts.Axis)
	}

	n := opts.N
	p := &Params{Options: opts, couplings: make([]float64, n*n), norm: 1}
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			c := math.Pow(math.Abs(float64(i-j)), -opts.Alpha)
			p.couplings[i*n+j] = c
			total += c
		}
	}
	if opts.Kac && n > 1 {
		p.norm = total / float64(n)
	}
	return p, nil
}

// Coupling is J_ij. The diagonal is 0.
func (p *Params) Coupling(i, j int) float64 { return p.couplings[i*p.N+j] }

// Norm is the Kac normalization, 1 when disabled.
func (p *Params) Norm() float64 { return p.norm }

// StateDim is the length 3N + 9N² of a trajectory state.
func (p *Params) StateDim() int { return 3*p.N + 9*p.N*p.N }
