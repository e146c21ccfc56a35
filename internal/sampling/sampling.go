// Package sampling draws the initial phase-space points of a trajectory.
package sampling

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
)

// Scheme names a discrete phase-point sampling prescription.
type Scheme string

const (
	// SPR samples the phase-point operators of a fully polarized product state.
	SPR Scheme = "spr"
	// OneZero and All are recognized names without a built-in sampler; a
	// model provider may register them.
	OneZero Scheme = "1-0"
	All     Scheme = "all"
)

var (
	ErrUnknownScheme = errors.New("sampling: unknown scheme")
	ErrUnknownAxis   = errors.New("sampling: unknown axis")
)

// ParseScheme resolves a scheme name, "" meaning SPR.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(s)) {
	case "", SPR:
		return SPR, nil
	case OneZero:
		return OneZero, nil
	case All:
		return All, nil
	}
	return "", fmt.Errorf("%w: %q (want spr, 1-0 or all)", ErrUnknownScheme, s)
}

// Sampler draws one initial condition: 3N site values laid out as
// site[a*N+i] and 9N² correlations laid out as corr[((a*3+b)*N+i)*N+j].
// All randomness comes from rng.
type Sampler interface {
	Sample(rng *rand.Rand) (site, corr []float64)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(rng *rand.Rand) (site, corr []float64)

func (f SamplerFunc) Sample(rng *rand.Rand) ([]float64, []float64) { return f(rng) }

// Axis is a spin component.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis resolves "x", "y" or "z", "" meaning x.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "", "x":
		return X, nil
	case "y":
		return Y, nil
	case "z":
		return Z, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, s)
}

// Polarized samples the product state with every spin along +Axis: that
// component is 1, the two transverse components are independently ±1 and
// all correlations start at 0.
type Polarized struct {
	N    int
	Axis Axis
}

func (p Polarized) Sample(rng *rand.Rand) ([]float64, []float64) {
	n := p.N
	site := make([]float64, 3*n)
	corr := make([]float64, 9*n*n)
	for i := 0; i < n; i++ {
		for a := X; a <= Z; a++ {
			if a == p.Axis {
				site[int(a)*n+i] = 1
				continue
			}
			site[int(a)*n+i] = float64(2*rng.Intn(2) - 1)
		}
	}
	return site, corr
}

// Set maps schemes to samplers. A scheme without a sampler falls back to
// the default scheme.
type Set struct {
	mu       sync.RWMutex
	def      Scheme
	samplers map[Scheme]Sampler
}

// NewSet returns a set whose default scheme def is served by s.
func NewSet(def Scheme, s Sampler) *Set {
	return &Set{def: def, samplers: map[Scheme]Sampler{def: s}}
}

// Register adds or replaces the sampler of a scheme.
func (s *Set) Register(scheme Scheme, sampler Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers[scheme] = sampler
}

// Default is the fallback scheme.
func (s *Set) Default() Scheme { return s.def }

// Schemes lists the registered schemes.
func (s *Set) Schemes() []Scheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scheme, 0, len(s.samplers))
	for k := range s.samplers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve returns the sampler for scheme and the scheme actually used.
// fellBack reports that scheme had no sampler and the default was used.
func (s *Set) Resolve(scheme Scheme) (sampler Sampler, used Scheme, fellBack bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sm, ok := s.samplers[scheme]; ok {
		return sm, scheme, false
	}
	return s.samplers[s.def], s.def, true
}
