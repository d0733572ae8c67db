package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
	"trpc.group/trpc-go/trpc-flow-go/workflow/store/inmemory"
)

func linearGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	record := func(id string) workflow.StepFunc {
		return func(ctx context.Context, state workflow.State) (workflow.State, error) {
			return workflow.State{"visited_" + id: true}, nil
		}
	}
	graph, err := workflow.NewBuilder(nil).
		AddStep("first", record("first")).
		AddStep("second", record("second")).
		AddEdge("first", "second").
		SetEntryPoint("first").
		SetFinishPoint("second").
		Compile()
	require.NoError(t, err)
	return graph
}

func TestEngineInvokeLinear(t *testing.T) {
	store := inmemory.NewStore()
	engine, err := workflow.NewEngine(linearGraph(t), store)
	require.NoError(t, err)

	result, err := engine.Invoke(context.Background(), "thread-1", workflow.State{"input": "x"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusTerminated, result.Status)
	assert.Equal(t, int64(2), result.Seq)
	assert.Equal(t, true, result.State["visited_first"])
	assert.Equal(t, true, result.State["visited_second"])

	// The history is gap-free starting at 1.
	for seq := int64(1); seq <= result.Seq; seq++ {
		checkpoint, err := store.Get(context.Background(), "thread-1", seq)
		require.NoError(t, err)
		assert.Equal(t, seq, checkpoint.Seq)
	}
}

func TestEngineStateCarriesAcrossEvents(t *testing.T) {
	var calls int
	graph, err := workflow.NewBuilder(nil).
		AddStep("count", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			calls++
			return workflow.State{"calls": calls}, nil
		}).
		SetEntryPoint("count").
		SetFinishPoint("count").
		Compile()
	require.NoError(t, err)

	engine, err := workflow.NewEngine(graph, inmemory.NewStore())
	require.NoError(t, err)

	first, err := engine.Invoke(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	// A second event re-enters at the entry step with carried state and
	// continues the same sequence.
	second, err := engine.Invoke(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, 2, second.State["calls"])
}

func approvalGraph(t *testing.T, effects *[]string) *workflow.Graph {
	t.Helper()
	graph, err := workflow.NewBuilder(nil).
		AddStep("approve", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			answer, err := workflow.Suspend(ctx, state, "approval", "proceed?")
			if err != nil {
				return nil, err
			}
			return workflow.State{"approved": answer == true}, nil
		}).
		AddStep("apply", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			// Guard the external effect with state so re-execution after a
			// crash-resume cannot apply it twice.
			if _, done := state["effect_id"]; done {
				return nil, nil
			}
			*effects = append(*effects, "applied")
			return workflow.State{"effect_id": fmt.Sprintf("fx_%d", len(*effects))}, nil
		}).
		AddExprRouter("approve", []workflow.ExprRule{
			{When: "approved == true", GoTo: "apply"},
			{When: "", GoTo: workflow.End},
		}).
		SetEntryPoint("approve").
		SetFinishPoint("apply").
		Compile()
	require.NoError(t, err)
	return graph
}

func TestEngineSuspendAndResume(t *testing.T) {
	var effects []string
	store := inmemory.NewStore()
	engine, err := workflow.NewEngine(approvalGraph(t, &effects), store)
	require.NoError(t, err)
	ctx := context.Background()

	result, err := engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuspended, result.Status)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, "approve", result.Suspend.StepID)
	assert.Equal(t, "proceed?", result.Suspend.Payload)
	assert.NotEmpty(t, result.Suspend.Token)
	assert.Empty(t, effects)

	resumed, err := engine.Resume(ctx, "t",
		workflow.NewResumeCommand().WithValue(true).WithToken(result.Suspend.Token))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusTerminated, resumed.Status)
	assert.Equal(t, []string{"applied"}, effects)
	assert.Equal(t, "fx_1", resumed.State["effect_id"])

	// The suspension was consumed; resuming again is an error.
	_, err = engine.Resume(ctx, "t", workflow.NewResumeCommand().WithValue(true))
	assert.ErrorIs(t, err, workflow.ErrNotSuspended)
}

func TestEngineResumeDeclined(t *testing.T) {
	var effects []string
	engine, err := workflow.NewEngine(approvalGraph(t, &effects), inmemory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	result, err := engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuspended, result.Status)

	resumed, err := engine.Resume(ctx, "t", workflow.NewResumeCommand().WithValue(false))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusTerminated, resumed.Status)
	assert.Empty(t, effects)
}

func TestEngineResumeDeterministic(t *testing.T) {
	var effectsA []string
	storeA := inmemory.NewStore()
	engineA, err := workflow.NewEngine(approvalGraph(t, &effectsA), storeA)
	require.NoError(t, err)
	ctx := context.Background()

	suspended, err := engineA.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuspended, suspended.Status)

	// Replay the same history into a second store, simulating a duplicate
	// delivery of the operator's decision against the same checkpoint.
	var effectsB []string
	storeB := inmemory.NewStore()
	for seq := int64(1); seq <= suspended.Seq; seq++ {
		checkpoint, err := storeA.Get(ctx, "t", seq)
		require.NoError(t, err)
		require.NoError(t, storeB.Put(ctx, checkpoint))
	}
	engineB, err := workflow.NewEngine(approvalGraph(t, &effectsB), storeB)
	require.NoError(t, err)

	resumedA, err := engineA.Resume(ctx, "t", workflow.NewResumeCommand().WithValue(true))
	require.NoError(t, err)
	resumedB, err := engineB.Resume(ctx, "t", workflow.NewResumeCommand().WithValue(true))
	require.NoError(t, err)

	assert.Equal(t, resumedA.Status, resumedB.Status)
	assert.Equal(t, resumedA.Seq, resumedB.Seq)
	assert.Equal(t, resumedA.State, resumedB.State)
	assert.Equal(t, effectsA, effectsB)
}

func TestEngineResumeTokenMismatch(t *testing.T) {
	var effects []string
	engine, err := workflow.NewEngine(approvalGraph(t, &effects), inmemory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)

	_, err = engine.Resume(ctx, "t",
		workflow.NewResumeCommand().WithValue(true).WithToken("wrong"))
	assert.ErrorIs(t, err, workflow.ErrTokenMismatch)
}

func TestEngineResumeUnknownThread(t *testing.T) {
	engine, err := workflow.NewEngine(linearGraph(t), inmemory.NewStore())
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), "ghost", workflow.NewResumeCommand())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestEngineResumeNotSuspended(t *testing.T) {
	engine, err := workflow.NewEngine(linearGraph(t), inmemory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)

	_, err = engine.Resume(ctx, "t", workflow.NewResumeCommand().WithValue(true))
	assert.ErrorIs(t, err, workflow.ErrNotSuspended)
}

func TestEngineNewEventSupersedesSuspension(t *testing.T) {
	var effects []string
	store := inmemory.NewStore()
	engine, err := workflow.NewEngine(approvalGraph(t, &effects), store)
	require.NoError(t, err)
	ctx := context.Background()

	suspended, err := engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuspended, suspended.Status)

	// A fresh event re-enters at the entry step and suspends anew with a
	// different token; the old one no longer matches.
	again, err := engine.Invoke(ctx, "t", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuspended, again.Status)
	assert.NotEqual(t, suspended.Suspend.Token, again.Suspend.Token)

	_, err = engine.Resume(ctx, "t",
		workflow.NewResumeCommand().WithValue(true).WithToken(suspended.Suspend.Token))
	assert.ErrorIs(t, err, workflow.ErrTokenMismatch)
}

func TestEngineStepFailureKeepsLastCheckpoint(t *testing.T) {
	boom := errors.New("boom")
	graph, err := workflow.NewBuilder(nil).
		AddStep("ok", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			return workflow.State{"ok": true}, nil
		}).
		AddStep("fail", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			return nil, boom
		}).
		AddEdge("ok", "fail").
		SetEntryPoint("ok").
		SetFinishPoint("fail").
		Compile()
	require.NoError(t, err)

	store := inmemory.NewStore()
	engine, err := workflow.NewEngine(graph, store)
	require.NoError(t, err)

	_, err = engine.Invoke(context.Background(), "t", nil)
	require.ErrorIs(t, err, boom)

	// The checkpoint persisted before the failing step is still latest.
	latest, err := store.Latest(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Seq)
	assert.Equal(t, workflow.StatusRunning, latest.Status)
	assert.Equal(t, "fail", latest.StepID)
}

func TestEngineMaxSteps(t *testing.T) {
	graph, err := workflow.NewBuilder(nil).
		AddStep("loop", func(ctx context.Context, state workflow.State) (workflow.State, error) {
			return nil, nil
		}).
		AddEdge("loop", "loop").
		SetEntryPoint("loop").
		Compile()
	require.NoError(t, err)

	engine, err := workflow.NewEngine(graph, inmemory.NewStore(), workflow.WithMaxSteps(5))
	require.NoError(t, err)

	_, err = engine.Invoke(context.Background(), "t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}
