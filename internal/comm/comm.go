// Package comm is the group-communication facility of an SPMD run.
//
// Every rank of a run executes the same program and meets the others only
// at collective calls. Collectives are blocking and must be entered by every
// rank in the same order; a rank that skips one stalls the group. Failures
// are reported as *CollectiveError and are fatal to the run.
package comm

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/dtwa/internal/xfloat"
)

// Root is the coordinating rank.
const Root = 0

// Comm is one rank's endpoint of a process group.
type Comm interface {
	Rank() int
	Size() int

	// ScatterV sends counts[r] consecutive values to rank r. values and
	// counts are only read on Root; every rank receives its own slice.
	ScatterV(ctx context.Context, values []int64, counts []int) ([]int64, error)

	// Reduce sums local elementwise over all ranks. Root receives the sum,
	// every other rank receives nil.
	Reduce(ctx context.Context, local []float64) ([]float64, error)

	// ReduceAcc is Reduce over widened values. Significand and exponent
	// travel whole, so Root receives the sum at accumulator precision and
	// range.
	ReduceAcc(ctx context.Context, local []*xfloat.Acc) ([]*xfloat.Acc, error)
}

var (
	ErrCollective  = errors.New("comm: collective operation failed")
	ErrBadCounts   = errors.New("comm: scatter counts do not match values or group size")
	ErrLengthMixed = errors.New("comm: reduce buffers differ in length across ranks")
	ErrBadRank     = errors.New("comm: rank outside group")
)

// CollectiveError wraps a failure of one collective call on one rank.
type CollectiveError struct {
	Op   string
	Rank int
	Err  error
}

func (e *CollectiveError) Error() string {
	return fmt.Sprintf("comm: %s on rank %d: %v", e.Op, e.Rank, e.Err)
}

func (e *CollectiveError) Unwrap() []error {
	return []error{ErrCollective, e.Err}
}

func collectiveErr(op string, rank int, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollectiveError
	if errors.As(err, &ce) {
		return err
	}
	return &CollectiveError{Op: op, Rank: rank, Err: err}
}

// Displacements returns the exclusive prefix sum of counts.
func Displacements(counts []int) []int {
	displs := make([]int, len(counts))
	off := 0
	for i, c := range counts {
		displs[i] = off
		off += c
	}
	return displs
}

func checkCounts(values []int64, counts []int, size int) error {
	if len(counts) != size {
		return fmt.Errorf("%w: %d counts for %d ranks", ErrBadCounts, len(counts), size)
	}
	total := 0
	for r, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: negative count %d for rank %d", ErrBadCounts, c, r)
		}
		total += c
	}
	if total != len(values) {
		return fmt.Errorf("%w: counts sum to %d, have %d values", ErrBadCounts, total, len(values))
	}
	return nil
}

func widen(local []float64) []*xfloat.Acc {
	out := make([]*xfloat.Acc, len(local))
	for i, v := range local {
		out[i] = new(xfloat.Acc)
		out[i].Add(v)
	}
	return out
}

func narrow(sum []*xfloat.Acc) []float64 {
	out := make([]float64, len(sum))
	for i, a := range sum {
		out[i] = a.Float64()
	}
	return out
}

func cloneAccs(local []*xfloat.Acc) []*xfloat.Acc {
	out := make([]*xfloat.Acc, len(local))
	for i, a := range local {
		out[i] = new(xfloat.Acc)
		if a != nil {
			out[i].AddAcc(a)
		}
	}
	return out
}
