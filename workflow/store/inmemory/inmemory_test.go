package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

func checkpoint(threadID string, seq int64) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		ThreadID: threadID,
		Seq:      seq,
		StepID:   "step",
		Status:   workflow.StatusRunning,
		State:    workflow.State{"seq": seq},
	}
}

func TestPutAndLatest(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
	require.NoError(t, store.Put(ctx, checkpoint("t", 2)))

	latest, err := store.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Seq)

	got, err := store.Get(ctx, "t", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)
}

func TestPutConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))

	assert.ErrorIs(t, store.Put(ctx, checkpoint("t", 1)), workflow.ErrConflict)
	assert.ErrorIs(t, store.Put(ctx, checkpoint("t", 3)), workflow.ErrConflict)
	assert.ErrorIs(t, store.Put(ctx, checkpoint("other", 2)), workflow.ErrConflict)
}

func TestLatestNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Latest(context.Background(), "ghost")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDeleteThread(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
	require.NoError(t, store.DeleteThread(ctx, "t"))

	_, err := store.Latest(ctx, "t")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	// A deleted thread starts over at seq 1.
	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
}

func TestThreads(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("a", 1)))
	require.NoError(t, store.Put(ctx, checkpoint("b", 1)))

	ids, err := store.Threads(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestStoredCheckpointIsIsolated(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	original := checkpoint("t", 1)
	require.NoError(t, store.Put(ctx, original))
	original.State["seq"] = int64(99)

	latest, err := store.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.State["seq"])

	latest.State["seq"] = int64(42)
	again, err := store.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.State["seq"])
}

func TestMaxCheckpointsPerThread(t *testing.T) {
	store := NewStore(WithMaxCheckpointsPerThread(2))
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, store.Put(ctx, checkpoint("t", seq)))
	}

	latest, err := store.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest.Seq)

	_, err = store.Get(ctx, "t", 1)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	// The sequence rule still applies against the retained latest.
	assert.ErrorIs(t, store.Put(ctx, checkpoint("t", 5)), workflow.ErrConflict)
	require.NoError(t, store.Put(ctx, checkpoint("t", 6)))
}

func TestConcurrentPutsSingleWinner(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Put(ctx, checkpoint("t", 2))
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, workflow.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
}
