// Package partition splits an ensemble of trajectories over the ranks of a
// group and hands every rank its seeds.
//
// Trajectory counts are assigned round robin, so per-rank counts differ by
// at most one. Seeds 1..nt are then dealt as contiguous slices in rank
// order, so every seed lands on exactly one rank.
package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/dtwa/internal/comm"
)

var ErrInvalid = errors.New("partition: invalid trajectory count or group size")

// Validate checks the global inputs of a partition. It uses no collective
// and gives the same answer on every rank.
func Validate(nt, size int) error {
	if nt < 1 {
		return fmt.Errorf("%w: %d trajectories", ErrInvalid, nt)
	}
	if size < 1 {
		return fmt.Errorf("%w: group size %d", ErrInvalid, size)
	}
	return nil
}

// LocalCount is the number of indices in [0, nt) congruent to rank mod size.
func LocalCount(nt, rank, size int) int {
	if nt <= 0 || size <= 0 || rank < 0 || rank >= size {
		return 0
	}
	n := nt / size
	if rank < nt%size {
		n++
	}
	return n
}

// Counts returns LocalCount for every rank.
func Counts(nt, size int) []int {
	counts := make([]int, size)
	for r := range counts {
		counts[r] = LocalCount(nt, r, size)
	}
	return counts
}

// Displacements is the exclusive prefix sum of counts.
func Displacements(counts []int) []int {
	return comm.Displacements(counts)
}

// Seeds returns 1..nt.
func Seeds(nt int) []int64 {
	seeds := make([]int64, nt)
	for i := range seeds {
		seeds[i] = int64(i + 1)
	}
	return seeds
}

// Scatter distributes the seeds of an nt-trajectory ensemble. It is a
// collective: every rank of c must call it with the same nt.
func Scatter(ctx context.Context, c comm.Comm, nt int) ([]int64, error) {
	if err := Validate(nt, c.Size()); err != nil {
		return nil, err
	}

	var seeds []int64
	var counts []int
	if c.Rank() == comm.Root {
		seeds = Seeds(nt)
		counts = Counts(nt, c.Size())
	}

	local, err := c.ScatterV(ctx, seeds, counts)
	if err != nil {
		return nil, err
	}
	if want := LocalCount(nt, c.Rank(), c.Size()); len(local) != want {
		return nil, fmt.Errorf("%w: rank %d received %d seeds, expected %d", comm.ErrCollective, c.Rank(), len(local), want)
	}
	return local, nil
}
