package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewFromClient(client)
	t.Cleanup(func() { store.Close() })
	return store
}

func checkpoint(threadID string, seq int64) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		StepID:    "step",
		Status:    workflow.StatusRunning,
		State:     workflow.State{"seq": float64(seq)},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPutAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
	require.NoError(t, store.Put(ctx, checkpoint("t", 2)))

	latest, err := store.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Seq)
	assert.Equal(t, float64(2), latest.State["seq"])

	got, err := store.Get(ctx, "t", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)
}

func TestPutConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))

	assert.ErrorIs(t, store.Put(ctx, checkpoint("t", 1)), workflow.ErrConflict)
	assert.ErrorIs(t, store.Put(ctx, checkpoint("t", 3)), workflow.ErrConflict)
	assert.ErrorIs(t, store.Put(ctx, checkpoint("fresh", 4)), workflow.ErrConflict)
}

func TestLatestNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Latest(context.Background(), "ghost")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))

	_, err := store.Get(ctx, "t", 7)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDeleteThread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
	require.NoError(t, store.Put(ctx, checkpoint("t", 2)))
	require.NoError(t, store.DeleteThread(ctx, "t"))

	_, err := store.Latest(ctx, "t")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = store.Get(ctx, "t", 1)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
}

func TestDeleteUnknownThread(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.DeleteThread(context.Background(), "ghost"))
}

func TestThreads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, checkpoint("a", 1)))
	require.NoError(t, store.Put(ctx, checkpoint("b", 1)))

	ids, err := store.Threads(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestCustomPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewFromClient(client, WithPrefix("svc:cp:"))
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, checkpoint("t", 1)))
	assert.True(t, mr.Exists("svc:cp:t:latest"))
}
