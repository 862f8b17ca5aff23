package deploy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPool_VisitsEveryItem(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	out := make([]int, len(items))

	err := runPool(context.Background(), 3, items, func(_ context.Context, i int, item int) error {
		out[i] = item * 2
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24}, out)
}

func TestRunPool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 50)

	err := runPool(context.Background(), 4, items, func(context.Context, int, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestRunPool_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	items := make([]int, 100)

	err := runPool(context.Background(), 1, items, func(_ context.Context, i int, _ int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunPool_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := runPool(ctx, 2, []int{1, 2, 3}, func(context.Context, int, int) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{name: "empty", items: nil, size: 3, want: nil},
		{name: "smaller than size", items: []int{1, 2}, size: 3, want: [][]int{{1, 2}}},
		{name: "exact multiple", items: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "remainder", items: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunk(tt.items, tt.size))
		})
	}
}

func TestChunk_BatchesDoNotAlias(t *testing.T) {
	batches := chunk([]int{1, 2, 3, 4}, 2)
	batches[0] = append(batches[0], 99)
	assert.Equal(t, []int{3, 4}, batches[1])
}
