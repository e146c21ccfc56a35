package partition

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		nt      int
		size    int
		wantErr bool
	}{
		{"ok", 8, 3, false},
		{"single", 1, 1, false},
		{"more ranks than work", 2, 5, false},
		{"zero trajectories", 0, 2, true},
		{"negative trajectories", -3, 2, true},
		{"zero ranks", 4, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.nt, tt.size)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	assert.Equal(t, []int{3, 3, 2}, Counts(8, 3))
	assert.Equal(t, []int{1, 1, 0, 0, 0}, Counts(2, 5))
	assert.Equal(t, []int{7}, Counts(7, 1))
}

func TestCounts_Balanced(t *testing.T) {
	for nt := 1; nt <= 40; nt++ {
		for size := 1; size <= 9; size++ {
			counts := Counts(nt, size)
			total, lo, hi := 0, counts[0], counts[0]
			for _, c := range counts {
				total += c
				lo = min(lo, c)
				hi = max(hi, c)
			}
			if total != nt || hi-lo > 1 {
				t.Fatalf("Counts(%d, %d) = %v", nt, size, counts)
			}
		}
	}
}

func TestLocalCount_RoundRobin(t *testing.T) {
	for nt := 0; nt <= 17; nt++ {
		for size := 1; size <= 5; size++ {
			for rank := 0; rank < size; rank++ {
				want := 0
				for i := 0; i < nt; i++ {
					if i%size == rank {
						want++
					}
				}
				if got := LocalCount(nt, rank, size); got != want {
					t.Errorf("LocalCount(%d, %d, %d) = %d, want %d", nt, rank, size, got, want)
				}
			}
		}
	}
}

func TestDisplacements(t *testing.T) {
	assert.Equal(t, []int{0, 3, 6}, Displacements(Counts(8, 3)))
}

func TestScatter_Self(t *testing.T) {
	seeds, err := Scatter(context.Background(), comm.Self{}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, seeds)
}

func TestScatter_InvalidCount(t *testing.T) {
	_, err := Scatter(context.Background(), comm.Self{}, 0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestScatter_SeedsAreAPartition(t *testing.T) {
	for _, tc := range []struct{ nt, size int }{{8, 3}, {1, 4}, {10, 1}, {13, 5}} {
		var mu sync.Mutex
		got := make(map[int][]int64)

		err := comm.RunLocal(context.Background(), tc.size, func(ctx context.Context, c comm.Comm) error {
			seeds, err := Scatter(ctx, c, tc.nt)
			if err != nil {
				return err
			}
			mu.Lock()
			got[c.Rank()] = seeds
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)

		var all []int64
		for r := 0; r < tc.size; r++ {
			assert.Len(t, got[r], LocalCount(tc.nt, r, tc.size), "nt=%d size=%d rank=%d", tc.nt, tc.size, r)
			all = append(all, got[r]...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		assert.Equal(t, Seeds(tc.nt), all, "nt=%d size=%d", tc.nt, tc.size)
	}
}

func TestScatter_EightOverThree(t *testing.T) {
	var mu sync.Mutex
	got := make(map[int][]int64)
	err := comm.RunLocal(context.Background(), 3, func(ctx context.Context, c comm.Comm) error {
		seeds, err := Scatter(ctx, c, 8)
		mu.Lock()
		got[c.Rank()] = seeds
		mu.Unlock()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got[0])
	assert.Equal(t, []int64{4, 5, 6}, got[1])
	assert.Equal(t, []int64{7, 8}, got[2])
}
