package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/dtwa/internal/xfloat"
)

// hub is the rendezvous point of one group. Operations are keyed by a
// per-kind sequence number that every rank advances in lockstep.
type hub struct {
	size int

	mu       sync.Mutex
	scatters map[uint64]*scatterOp
	reduces  map[uint64]*reduceOp
}

type scatterOp struct {
	ready   chan struct{}
	parts   [][]int64
	err     error
	fetched int
}

type reduceOp struct {
	parts   [][]*xfloat.Acc
	seen    []bool
	arrived int
	done    chan struct{}
	sum     []*xfloat.Acc
	err     error
}

func newHub(size int) *hub {
	return &hub{
		size:     size,
		scatters: make(map[uint64]*scatterOp),
		reduces:  make(map[uint64]*reduceOp),
	}
}

func (h *hub) scatterOp(seq uint64) *scatterOp {
	op, ok := h.scatters[seq]
	if !ok {
		op = &scatterOp{ready: make(chan struct{})}
		h.scatters[seq] = op
	}
	return op
}

func (h *hub) reduceOp(seq uint64) *reduceOp {
	op, ok := h.reduces[seq]
	if !ok {
		op = &reduceOp{
			parts: make([][]*xfloat.Acc, h.size),
			seen:  make([]bool, h.size),
			done:  make(chan struct{}),
		}
		h.reduces[seq] = op
	}
	return op
}

// post publishes root's buffer for scatter seq.
func (h *hub) post(seq uint64, values []int64, counts []int) error {
	h.mu.Lock()
	op := h.scatterOp(seq)
	h.mu.Unlock()

	if err := checkCounts(values, counts, h.size); err != nil {
		op.err = err
	} else {
		displs := Displacements(counts)
		op.parts = make([][]int64, h.size)
		for r := range counts {
			part := make([]int64, counts[r])
			copy(part, values[displs[r]:displs[r]+counts[r]])
			op.parts[r] = part
		}
	}
	close(op.ready)
	return op.err
}

// fetch blocks until root has posted scatter seq and returns rank's part.
func (h *hub) fetch(ctx context.Context, seq uint64, rank int) ([]int64, error) {
	if rank < 0 || rank >= h.size {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadRank, rank, h.size)
	}

	h.mu.Lock()
	op := h.scatterOp(seq)
	h.mu.Unlock()

	select {
	case <-op.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.mu.Lock()
	op.fetched++
	if op.fetched == h.size {
		delete(h.scatters, seq)
	}
	h.mu.Unlock()

	if op.err != nil {
		return nil, op.err
	}
	return op.parts[rank], nil
}

// contribute adds rank's buffer to reduce seq. The last arrival computes the
// sum in rank order, so the result does not depend on arrival order.
func (h *hub) contribute(seq uint64, rank int, local []*xfloat.Acc) (*reduceOp, error) {
	if rank < 0 || rank >= h.size {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadRank, rank, h.size)
	}

	buf := cloneAccs(local)

	h.mu.Lock()
	defer h.mu.Unlock()

	op := h.reduceOp(seq)
	if op.seen[rank] {
		return nil, fmt.Errorf("%w: rank %d contributed twice to reduce %d", ErrCollective, rank, seq)
	}
	op.seen[rank] = true
	op.parts[rank] = buf
	op.arrived++
	if op.arrived == h.size {
		op.sum, op.err = sumParts(op.parts)
		op.parts = nil
		close(op.done)
	}
	return op, nil
}

// await blocks root until reduce seq is complete.
func (h *hub) await(ctx context.Context, seq uint64, op *reduceOp) ([]*xfloat.Acc, error) {
	select {
	case <-op.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.mu.Lock()
	delete(h.reduces, seq)
	h.mu.Unlock()

	return op.sum, op.err
}

// sumParts adds the parts in rank order without rounding to float64.
func sumParts(parts [][]*xfloat.Acc) ([]*xfloat.Acc, error) {
	n := len(parts[0])
	for r, p := range parts {
		if len(p) != n {
			return nil, fmt.Errorf("%w: rank 0 sent %d values, rank %d sent %d", ErrLengthMixed, n, r, len(p))
		}
	}

	sum := make([]*xfloat.Acc, n)
	for i := range sum {
		sum[i] = new(xfloat.Acc)
		for _, p := range parts {
			sum[i].AddAcc(p[i])
		}
	}
	return sum, nil
}
