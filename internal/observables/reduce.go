package observables

import (
	"context"
	"fmt"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/xfloat"
)

// Totals are the ensemble-wide sums held by the coordinator.
type Totals struct {
	Times []float64

	sums       *Sums
	normalized bool
}

// Sums exposes the raw reduced sums.
func (t *Totals) Sums() *Sums { return t.sums }

// Reduce sums every rank's local sums onto the coordinator in one collective
// call. Values stay widened end to end and are first rounded to float64 in
// Normalize. The coordinator gets the totals, every other rank gets nil.
func Reduce(ctx context.Context, c comm.Comm, local *Sums, grid []float64) (*Totals, error) {
	if local == nil {
		local = NewSums(len(grid))
	}
	if local.steps != len(grid) {
		return nil, fmt.Errorf("%w: sums over %d points, grid has %d", ErrGridMismatch, local.steps, len(grid))
	}

	// the diverged count rides in the last slot
	payload := make([]*xfloat.Acc, len(local.acc)+1)
	for i := range local.acc {
		payload[i] = &local.acc[i]
	}
	payload[len(local.acc)] = new(xfloat.Acc)
	payload[len(local.acc)].Add(float64(local.diverged))

	reduced, err := c.ReduceAcc(ctx, payload)
	if err != nil {
		return nil, err
	}
	if c.Rank() != comm.Root {
		return nil, nil
	}
	if len(reduced) != len(payload) {
		return nil, fmt.Errorf("%w: reduced %d values, sent %d", comm.ErrCollective, len(reduced), len(payload))
	}

	sums := NewSums(len(grid))
	for i := range sums.acc {
		sums.acc[i].AddAcc(reduced[i])
	}
	sums.diverged = int(reduced[len(sums.acc)].Float64())

	times := make([]float64, len(grid))
	copy(times, grid)
	return &Totals{Times: times, sums: sums}, nil
}

// Normalize turns the totals of nt trajectories on n sites into ensemble
// averages. It may be called once.
func (t *Totals) Normalize(conv Convention, nt, n int) (*Dataset, error) {
	if t.normalized {
		return nil, ErrAlreadyNormalized
	}
	if nt < 1 || n < 1 {
		return nil, fmt.Errorf("observables: cannot normalize %d trajectories on %d sites", nt, n)
	}
	norm, ok := conventions[conv]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConvention, conv)
	}
	t.normalized = true

	steps := len(t.Times)
	d := NewDataset(t.Times)
	d.Diverged = t.sums.diverged

	siteScale := float64(nt) * float64(n)
	pairScale := siteScale * float64(n)

	for k := 0; k < steps; k++ {
		var mean [3]float64
		for a := 0; a < 3; a++ {
			var acc xfloat.Acc
			acc.AddAcc(t.sums.at(k, SX+Channel(a)))
			acc.Quo(siteScale)
			mean[a] = acc.Float64()
		}

		var pair [NumChannels]float64
		for _, p := range pairs {
			var acc xfloat.Acc
			acc.AddAcc(t.sums.at(k, p.ch))
			acc.Quo(pairScale)
			pair[p.ch] = norm(&acc, mean[p.a], mean[p.b], p.a == p.b, n)
		}

		d.SX[k], d.SY[k], d.SZ[k] = mean[0], mean[1], mean[2]
		d.SXVar[k] = pair[SXX]
		d.SYVar[k] = pair[SYY]
		d.SZVar[k] = pair[SZZ]
		d.SXYVar[k] = pair[SXY]
		d.SXZVar[k] = pair[SXZ]
		d.SYZVar[k] = pair[SYZ]
	}
	return d, nil
}
