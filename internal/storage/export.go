package storage

import (
	"encoding/json"
	"io"
	"math"

	"github.com/san-kum/dtwa/internal/observables"
)

type ExportData struct {
	Run         RunMetadata      `json:"run"`
	Observables *nullableDataset `json:"observables"`
}

// ExportJSON writes a run as one JSON document. NaN and infinite values
// are not representable in JSON and are written as null.
func ExportJSON(w io.Writer, meta RunMetadata, data *observables.Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Run: meta, Observables: jsonSafe(data)})
}

type nullableDataset struct {
	Times  []*float64 `json:"times"`
	SX     []*float64 `json:"sx"`
	SY     []*float64 `json:"sy"`
	SZ     []*float64 `json:"sz"`
	SXVar  []*float64 `json:"sxvar"`
	SYVar  []*float64 `json:"syvar"`
	SZVar  []*float64 `json:"szvar"`
	SXYVar []*float64 `json:"sxyvar"`
	SXZVar []*float64 `json:"sxzvar"`
	SYZVar []*float64 `json:"syzvar"`
	Drift  []*float64 `json:"drift,omitempty"`
}

func nullable(xs []float64) []*float64 {
	if xs == nil {
		return nil
	}
	out := make([]*float64, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) {
			continue
		}
		out[i] = &xs[i]
	}
	return out
}

func jsonSafe(d *observables.Dataset) *nullableDataset {
	if d == nil {
		return nil
	}
	return &nullableDataset{
		Times:  nullable(d.Times),
		SX:     nullable(d.SX),
		SY:     nullable(d.SY),
		SZ:     nullable(d.SZ),
		SXVar:  nullable(d.SXVar),
		SYVar:  nullable(d.SYVar),
		SZVar:  nullable(d.SZVar),
		SXYVar: nullable(d.SXYVar),
		SXZVar: nullable(d.SXZVar),
		SYZVar: nullable(d.SYZVar),
		Drift:  nullable(d.Drift),
	}
}
