package batch

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d *LocalDispatcher, g Group) []ChunkResult {
	t.Helper()
	done := make(chan []ChunkResult, 1)
	g.Finalize = func(ctx context.Context, results []ChunkResult) { done <- results }
	require.NoError(t, d.Submit(context.Background(), g))
	select {
	case results := <-done:
		return results
	case <-time.After(2 * time.Second):
		t.Fatal("aggregation never ran")
		return nil
	}
}

func TestDispatcherAggregatesEveryChunkOnce(t *testing.T) {
	d := testDispatcher(t, 4, 1)
	chunks := Partition(ids(23), 2)

	results := collect(t, d, Group{
		Chunks: chunks,
		Run: func(ctx context.Context, c Chunk) (Counts, error) {
			// Later chunks finish first.
			time.Sleep(time.Duration(len(chunks)-c.Index) * time.Millisecond)
			return Counts{Synced: len(c.IDs)}, nil
		},
	})

	require.Len(t, results, len(chunks))
	var total Counts
	seen := map[int]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Chunk.Index])
		seen[r.Chunk.Index] = true
		total = total.Add(r.Counts)
	}
	assert.Equal(t, 23, total.Total())
}

func TestDispatcherRetriesAbortedChunk(t *testing.T) {
	d := testDispatcher(t, 1, 3)
	var (
		mu       gosync.Mutex
		attempts int
	)

	results := collect(t, d, Group{
		Chunks: Partition(ids(3), 3),
		Run: func(ctx context.Context, c Chunk) (Counts, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return Counts{}, errors.New("broker hiccup")
			}
			return Counts{Synced: 3}, nil
		},
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, Counts{Synced: 3}, results[0].Counts)
	assert.Equal(t, 3, attempts)
}

func TestDispatcherReportsExhaustedChunkAsFailed(t *testing.T) {
	d := testDispatcher(t, 2, 2)
	var (
		mu       gosync.Mutex
		attempts int
	)

	results := collect(t, d, Group{
		Chunks: Partition(ids(5), 5),
		Run: func(ctx context.Context, c Chunk) (Counts, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			panic("nil row")
		},
	})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, Counts{Failed: 5}, results[0].Counts)
	assert.Equal(t, 2, attempts)
}

func TestDispatcherRejectsWorkAfterShutdown(t *testing.T) {
	d := testDispatcher(t, 1, 1)
	require.NoError(t, d.Shutdown(context.Background()))

	err := d.Submit(context.Background(), Group{
		Chunks:   Partition(ids(1), 1),
		Run:      func(ctx context.Context, c Chunk) (Counts, error) { return Counts{}, nil },
		Finalize: func(ctx context.Context, results []ChunkResult) {},
	})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcherSurvivesPanickingAggregation(t *testing.T) {
	d := testDispatcher(t, 2, 1)
	run := func(ctx context.Context, c Chunk) (Counts, error) {
		return Counts{Synced: len(c.IDs)}, nil
	}

	require.NoError(t, d.Submit(context.Background(), Group{
		Chunks:   Partition(ids(4), 2),
		Run:      run,
		Finalize: func(ctx context.Context, results []ChunkResult) { panic("aggregation bug") },
	}))

	results := collect(t, d, Group{Chunks: Partition(ids(3), 2), Run: run})
	assert.Len(t, results, 2)
}
