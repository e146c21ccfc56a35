package observables

import (
	"errors"
	"fmt"

	"github.com/san-kum/dtwa/internal/xfloat"
)

// Convention selects how the pair channels are reported.
type Convention string

const (
	// Connected reports the variance and covariances of the total spin per
	// site: the self-term 1/N is added to the diagonal and the product of
	// the means is subtracted.
	Connected Convention = "connected"
	// Raw reports the scaled pair sums Q^{ab} / (n_t N²).
	Raw Convention = "raw"
)

var ErrUnknownConvention = errors.New("observables: unknown normalization convention")

// pairNorm maps a scaled pair sum to its reported value.
type pairNorm func(scaled *xfloat.Acc, ma, mb float64, diagonal bool, n int) float64

var conventions = map[Convention]pairNorm{
	Connected: func(scaled *xfloat.Acc, ma, mb float64, diagonal bool, n int) float64 {
		if diagonal {
			scaled.Add(1 / float64(n))
		}
		scaled.AddProd(-ma, mb)
		return scaled.Float64()
	},
	Raw: func(scaled *xfloat.Acc, _, _ float64, _ bool, _ int) float64 {
		return scaled.Float64()
	},
}

// ParseConvention resolves a convention name, "" meaning Connected.
func ParseConvention(s string) (Convention, error) {
	if s == "" {
		return Connected, nil
	}
	c := Convention(s)
	if _, ok := conventions[c]; !ok {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownConvention, s, Connected, Raw)
	}
	return c, nil
}

// Dataset is the time-resolved ensemble average of one run.
type Dataset struct {
	Times []float64 `json:"times"`

	SX []float64 `json:"sx"`
	SY []float64 `json:"sy"`
	SZ []float64 `json:"sz"`

	SXVar  []float64 `json:"sxvar"`
	SYVar  []float64 `json:"syvar"`
	SZVar  []float64 `json:"szvar"`
	SXYVar []float64 `json:"sxyvar"`
	SXZVar []float64 `json:"sxzvar"`
	SYZVar []float64 `json:"syzvar"`

	// Drift is the RMS time derivative of the Weyl symbol, only present
	// when the run collected diagnostics.
	Drift []float64 `json:"drift,omitempty"`

	// Scheme is the sampling scheme that produced the initial conditions,
	// set by the run.
	Scheme string `json:"scheme,omitempty"`
	// Diverged counts the trajectories that left the finite numbers.
	Diverged int `json:"diverged,omitempty"`
}

// NewDataset returns a zeroed dataset over times, without drift.
func NewDataset(times []float64) *Dataset {
	n := len(times)
	return &Dataset{
		Times:  times,
		SX:     make([]float64, n),
		SY:     make([]float64, n),
		SZ:     make([]float64, n),
		SXVar:  make([]float64, n),
		SYVar:  make([]float64, n),
		SZVar:  make([]float64, n),
		SXYVar: make([]float64, n),
		SXZVar: make([]float64, n),
		SYZVar: make([]float64, n),
	}
}

func (d *Dataset) Len() int { return len(d.Times) }

// Columns names the series in the order Series returns them.
func (d *Dataset) Columns() []string {
	cols := []string{"t", "sx", "sy", "sz", "sxvar", "syvar", "szvar", "sxyvar", "sxzvar", "syzvar"}
	if d.Drift != nil {
		cols = append(cols, "drift")
	}
	return cols
}

// Series returns the columns as slices sharing the dataset's storage.
func (d *Dataset) Series() [][]float64 {
	s := [][]float64{d.Times, d.SX, d.SY, d.SZ, d.SXVar, d.SYVar, d.SZVar, d.SXYVar, d.SXZVar, d.SYZVar}
	if d.Drift != nil {
		s = append(s, d.Drift)
	}
	return s
}

// Column looks up a series by name.
func (d *Dataset) Column(name string) ([]float64, bool) {
	for i, c := range d.Columns() {
		if c == name {
			return d.Series()[i], true
		}
	}
	return nil, false
}
