package comm

import (
	"context"
	"fmt"

	"github.com/san-kum/dtwa/internal/xfloat"
	"golang.org/x/sync/errgroup"
)

// endpoint is a rank backed directly by a hub.
type endpoint struct {
	h          *hub
	rank       int
	scatterSeq uint64
	reduceSeq  uint64
}

func (e *endpoint) Rank() int { return e.rank }
func (e *endpoint) Size() int { return e.h.size }

func (e *endpoint) ScatterV(ctx context.Context, values []int64, counts []int) ([]int64, error) {
	seq := e.scatterSeq
	e.scatterSeq++

	if e.rank == Root {
		if err := e.h.post(seq, values, counts); err != nil {
			return nil, collectiveErr("scatterv", e.rank, err)
		}
	}
	part, err := e.h.fetch(ctx, seq, e.rank)
	if err != nil {
		return nil, collectiveErr("scatterv", e.rank, err)
	}
	return part, nil
}

func (e *endpoint) Reduce(ctx context.Context, local []float64) ([]float64, error) {
	sum, err := e.ReduceAcc(ctx, widen(local))
	if err != nil || sum == nil {
		return nil, err
	}
	return narrow(sum), nil
}

func (e *endpoint) ReduceAcc(ctx context.Context, local []*xfloat.Acc) ([]*xfloat.Acc, error) {
	seq := e.reduceSeq
	e.reduceSeq++

	op, err := e.h.contribute(seq, e.rank, local)
	if err != nil {
		return nil, collectiveErr("reduce", e.rank, err)
	}
	if e.rank != Root {
		return nil, nil
	}
	sum, err := e.h.await(ctx, seq, op)
	if err != nil {
		return nil, collectiveErr("reduce", e.rank, err)
	}
	return sum, nil
}

// NewGroup returns the endpoints of an in-process group, indexed by rank.
// Each endpoint must be driven by its own goroutine.
func NewGroup(size int) ([]Comm, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrBadRank, size)
	}
	h := newHub(size)
	group := make([]Comm, size)
	for r := range group {
		group[r] = &endpoint{h: h, rank: r}
	}
	return group, nil
}

// RunLocal runs fn once per rank of a new in-process group, each rank on its
// own goroutine. The first failing rank cancels the context of the others so
// the group unwinds instead of stalling in a collective.
func RunLocal(ctx context.Context, size int, fn func(ctx context.Context, c Comm) error) error {
	group, err := NewGroup(size)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range group {
		c := c
		g.Go(func() error {
			return fn(gctx, c)
		})
	}
	return g.Wait()
}
