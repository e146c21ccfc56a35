// Package timegrid resolves the requested output times of a run into one
// validated grid. Resolution depends only on the requested value, so every
// rank of a run reaches the same verdict.
package timegrid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for anything that is neither a range nor an explicit list.
	ErrMalformed = errors.New("timegrid: expected a (start, end, steps) range or an explicit list of times")

	ErrInvalidRange  = errors.New("timegrid: invalid range")
	ErrNotIncreasing = errors.New("timegrid: times must be finite and strictly increasing")
)

// Spec is either a Range or an Explicit list.
type Spec interface {
	isSpec()
	String() string
}

// Range is evenly spaced with dt = (End-Start)/(Steps-1). The grid is
// half-open: it starts at Start and stops before End, Steps-1 points.
type Range struct {
	Start float64
	End   float64
	Steps int
}

// Explicit is used verbatim.
type Explicit []float64

func (Range) isSpec()    {}
func (Explicit) isSpec() {}

func (r Range) String() string {
	return fmt.Sprintf("range(%g, %g, %d)", r.Start, r.End, r.Steps)
}

func (e Explicit) String() string {
	if len(e) == 0 {
		return "times[]"
	}
	return fmt.Sprintf("times[%g..%g, n=%d]", e[0], e[len(e)-1], len(e))
}

type Grid []float64

func (g Grid) Len() int { return len(g) }

// Resolve validates s and builds its grid.
func Resolve(s Spec) (Grid, error) {
	switch v := s.(type) {
	case Range:
		return v.grid()
	case Explicit:
		return v.grid()
	case *Range:
		if v != nil {
			return v.grid()
		}
	case *Explicit:
		if v != nil {
			return v.grid()
		}
	}
	return nil, fmt.Errorf("%w: got %T", ErrMalformed, s)
}

func (r Range) grid() (Grid, error) {
	if math.IsNaN(r.Start) || math.IsInf(r.Start, 0) || math.IsNaN(r.End) || math.IsInf(r.End, 0) {
		return nil, fmt.Errorf("%w: non-finite bounds in %s", ErrInvalidRange, r)
	}
	if r.Steps < 2 {
		return nil, fmt.Errorf("%w: need at least 2 steps, got %d", ErrInvalidRange, r.Steps)
	}
	if r.End <= r.Start {
		return nil, fmt.Errorf("%w: end %g must exceed start %g", ErrInvalidRange, r.End, r.Start)
	}

	dt := (r.End - r.Start) / float64(r.Steps-1)
	g := make(Grid, r.Steps-1)
	for i := range g {
		g[i] = r.Start + float64(i)*dt
	}
	return g, nil
}

func (e Explicit) grid() (Grid, error) {
	if len(e) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrNotIncreasing)
	}
	g := make(Grid, len(e))
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: times[%d] = %g", ErrNotIncreasing, i, v)
		}
		if i > 0 && v <= e[i-1] {
			return nil, fmt.Errorf("%w: times[%d] = %g after %g", ErrNotIncreasing, i, v, e[i-1])
		}
		g[i] = v
	}
	return g, nil
}

// ParseRange parses "start,end,steps".
func ParseRange(s string) (Range, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("%w: start: %v", ErrMalformed, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("%w: end: %v", ErrMalformed, err)
	}
	steps, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Range{}, fmt.Errorf("%w: steps: %v", ErrMalformed, err)
	}
	return Range{Start: start, End: end, Steps: steps}, nil
}

// ParseExplicit parses a comma separated list of times.
func ParseExplicit(s string) (Explicit, error) {
	parts := strings.Split(s, ",")
	out := make(Explicit, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = append(out, v)
	}
	return out, nil
}
