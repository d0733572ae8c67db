//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/telemetry/trace"
)

// defaultMaxSteps bounds one invocation so a routing cycle cannot spin
// forever.
const defaultMaxSteps = 100

// Engine executes a compiled workflow graph over persisted thread state.
// It is safe for concurrent use; invocations for the same thread are
// serialized in-process, and the store's sequence rule serializes writers
// across processes.
type Engine struct {
	graph    *Graph
	store    Store
	maxSteps int

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxSteps overrides the per-invocation step limit.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		if maxSteps > 0 {
			e.maxSteps = maxSteps
		}
	}
}

// NewEngine creates an engine for the given graph and checkpoint store.
func NewEngine(graph *Graph, store Store, opts ...EngineOption) (*Engine, error) {
	if graph == nil {
		return nil, errors.New("workflow: graph is required")
	}
	if store == nil {
		return nil, errors.New("workflow: store is required")
	}
	engine := &Engine{
		graph:    graph,
		store:    store,
		maxSteps: defaultMaxSteps,
		threads:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Result is the outcome of an Invoke or Resume call: the thread's status
// and state as of the latest persisted checkpoint, plus the pending
// SuspendRequest when the thread paused.
type Result struct {
	ThreadID string
	Status   Status
	Seq      int64
	State    State
	Suspend  *SuspendRequest
}

// Invoke feeds a new input event into a thread. For an unknown thread it
// initializes state from the schema defaults; for an existing one it
// loads the latest checkpoint and carries its state forward. Execution
// always enters at the graph's entry step, so durable facts a thread has
// learned survive across events while transient routing restarts fresh.
//
// A pending suspension is superseded by the new event: the thread leaves
// the suspended status and the old resume token becomes invalid.
func (e *Engine) Invoke(ctx context.Context, threadID string, input State) (*Result, error) {
	if threadID == "" {
		return nil, errors.New("workflow: thread id is required")
	}
	unlock := e.lockThread(threadID)
	defer unlock()

	ctx, span := trace.Tracer.Start(ctx, "invoke_workflow")
	defer span.End()
	span.SetAttributes(attribute.String("trpc.go.flow.thread_id", threadID))

	var state State
	var seq int64
	latest, err := e.store.Latest(ctx, threadID)
	switch {
	case err == nil:
		state = latest.State.Clone()
		seq = latest.Seq
	case errors.Is(err, ErrNotFound):
		state = e.graph.schema.Initialize()
	default:
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}

	state = e.graph.schema.ApplyUpdate(state, input)
	return e.run(ctx, threadID, e.graph.entryPoint, state, seq)
}

// Resume continues a suspended thread, delivering the command's value to
// the step that suspended. The suspended step re-executes from its
// beginning; steps with external effects are expected to guard them with
// state so re-execution is idempotent.
//
// A suspension is consumed at most once. Whichever of two racing resumes
// persists the next checkpoint first wins; the loser observes the thread
// as no longer suspended (ErrNotSuspended) or loses the store write
// (ErrConflict).
func (e *Engine) Resume(ctx context.Context, threadID string, cmd *ResumeCommand) (*Result, error) {
	if threadID == "" {
		return nil, errors.New("workflow: thread id is required")
	}
	if cmd == nil {
		cmd = NewResumeCommand()
	}
	unlock := e.lockThread(threadID)
	defer unlock()

	ctx, span := trace.Tracer.Start(ctx, "resume_workflow")
	defer span.End()
	span.SetAttributes(attribute.String("trpc.go.flow.thread_id", threadID))

	latest, err := e.store.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if latest.Status != StatusSuspended || latest.Suspend == nil {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotSuspended)
	}
	if cmd.Token != "" && cmd.Token != latest.Suspend.Token {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrTokenMismatch)
	}

	state := latest.State.Clone()
	state[stateKeyResumeValue] = cmd.Value
	return e.run(ctx, threadID, latest.StepID, state, latest.Seq)
}

// Latest returns the thread's most recent checkpoint.
func (e *Engine) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	return e.store.Latest(ctx, threadID)
}

// run drives the step loop from stepID until the workflow suspends,
// terminates, or fails. seq is the sequence of the last persisted
// checkpoint; every snapshot written here uses seq+1, keeping the
// per-thread history gap-free.
func (e *Engine) run(ctx context.Context, threadID, stepID string, state State, seq int64) (*Result, error) {
	for i := 0; i < e.maxSteps; i++ {
		step, ok := e.graph.Step(stepID)
		if !ok {
			return nil, &ConfigError{Step: stepID, Reason: "step does not exist"}
		}

		stepCtx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_step %s", stepID))
		span.SetAttributes(
			attribute.String("trpc.go.flow.thread_id", threadID),
			attribute.String("trpc.go.flow.step_id", stepID),
		)
		delta, err := step.Function(stepCtx, state)
		span.End()
		if err != nil {
			if suspend, ok := AsSuspendError(err); ok {
				return e.suspend(ctx, threadID, stepID, state, seq, suspend)
			}
			// The last good checkpoint stays latest; the failed step left
			// no trace and the thread can receive further events.
			return nil, fmt.Errorf("step %s: %w", stepID, err)
		}
		if delta != nil {
			state = e.graph.schema.ApplyUpdate(state, delta)
		}

		next, err := e.graph.next(ctx, stepID, state)
		if err != nil {
			return nil, err
		}
		log.Debugf("workflow: thread %s step %s -> %s", threadID, stepID, next)

		seq++
		if next == End {
			checkpoint := e.newCheckpoint(threadID, seq, stepID, StatusTerminated, state)
			if err := e.store.Put(ctx, checkpoint); err != nil {
				return nil, fmt.Errorf("persist checkpoint: %w", err)
			}
			return e.result(checkpoint), nil
		}
		checkpoint := e.newCheckpoint(threadID, seq, next, StatusRunning, state)
		if err := e.store.Put(ctx, checkpoint); err != nil {
			return nil, fmt.Errorf("persist checkpoint: %w", err)
		}
		stepID = next
	}
	return nil, fmt.Errorf("thread %s exceeded %d steps", threadID, e.maxSteps)
}

// suspend persists a suspended checkpoint pointing back at the step that
// raised the suspension, so Resume re-executes it from the top.
func (e *Engine) suspend(
	ctx context.Context,
	threadID, stepID string,
	state State,
	seq int64,
	suspendErr *SuspendError,
) (*Result, error) {
	request := &SuspendRequest{
		Token:     uuid.NewString(),
		StepID:    stepID,
		Payload:   suspendErr.Payload,
		CreatedAt: time.Now().UTC(),
	}
	checkpoint := e.newCheckpoint(threadID, seq+1, stepID, StatusSuspended, state)
	checkpoint.Suspend = request
	if err := e.store.Put(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("persist suspended checkpoint: %w", err)
	}
	log.Infof("workflow: thread %s suspended at step %s", threadID, stepID)
	return e.result(checkpoint), nil
}

// newCheckpoint snapshots the state, stripping ephemeral resume
// bookkeeping so it never leaks into storage.
func (e *Engine) newCheckpoint(threadID string, seq int64, stepID string, status Status, state State) *Checkpoint {
	snapshot := state.Clone()
	for key := range snapshot {
		if isInternalStateKey(key) {
			delete(snapshot, key)
		}
	}
	return &Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		StepID:    stepID,
		Status:    status,
		State:     snapshot,
		CreatedAt: time.Now().UTC(),
	}
}

func (e *Engine) result(checkpoint *Checkpoint) *Result {
	return &Result{
		ThreadID: checkpoint.ThreadID,
		Status:   checkpoint.Status,
		Seq:      checkpoint.Seq,
		State:    checkpoint.State.Clone(),
		Suspend:  checkpoint.Suspend,
	}
}

// lockThread serializes in-process work on one thread.
func (e *Engine) lockThread(threadID string) func() {
	e.mu.Lock()
	lock, ok := e.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threads[threadID] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
