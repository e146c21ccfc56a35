package comm

import (
	"context"

	"github.com/san-kum/dtwa/internal/xfloat"
)

// Self is a group of one.
type Self struct{}

func (Self) Rank() int { return Root }
func (Self) Size() int { return 1 }

func (Self) ScatterV(ctx context.Context, values []int64, counts []int) ([]int64, error) {
	if err := checkCounts(values, counts, 1); err != nil {
		return nil, collectiveErr("scatterv", Root, err)
	}
	out := make([]int64, len(values))
	copy(out, values)
	return out, nil
}

func (Self) Reduce(ctx context.Context, local []float64) ([]float64, error) {
	out := make([]float64, len(local))
	copy(out, local)
	return out, nil
}

func (Self) ReduceAcc(ctx context.Context, local []*xfloat.Acc) ([]*xfloat.Acc, error) {
	return cloneAccs(local), nil
}
