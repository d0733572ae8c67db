//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package runner schedules workflow invocations on a shared worker pool.
// Events for one thread are processed strictly in order of submission;
// distinct threads run concurrently up to the pool size.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

const defaultParallelism = 16

// Invoker is the engine surface the runner drives. *workflow.Engine
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, threadID string, input workflow.State) (*workflow.Result, error)
	Resume(ctx context.Context, threadID string, cmd *workflow.ResumeCommand) (*workflow.Result, error)
}

// ErrClosed is returned when submitting to a closed runner.
var ErrClosed = errors.New("runner is closed")

// Future is the pending outcome of a submitted event.
type Future struct {
	done   chan struct{}
	result *workflow.Result
	err    error
}

// Wait blocks until the event has been processed or ctx is done.
func (f *Future) Wait(ctx context.Context) (*workflow.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) complete(result *workflow.Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

type task struct {
	run    func(ctx context.Context) (*workflow.Result, error)
	ctx    context.Context
	future *Future
}

// Runner dispatches events to an Invoker through an ants worker pool,
// with a FIFO queue per thread so one thread never runs two events at
// once.
type Runner struct {
	invoker Invoker
	pool    *ants.Pool

	mu     sync.Mutex
	queues map[string][]*task
	active map[string]bool
	closed bool
}

// Option configures the runner.
type Option func(*options)

type options struct {
	parallelism int
}

// WithParallelism sets the worker pool size.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// New creates a runner over the given invoker.
func New(invoker Invoker, opts ...Option) (*Runner, error) {
	if invoker == nil {
		return nil, errors.New("runner: invoker is required")
	}
	o := options{parallelism: defaultParallelism}
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := ants.NewPool(o.parallelism)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Runner{
		invoker: invoker,
		pool:    pool,
		queues:  make(map[string][]*task),
		active:  make(map[string]bool),
	}, nil
}

// Submit enqueues a new input event for a thread.
func (r *Runner) Submit(ctx context.Context, threadID string, input workflow.State) (*Future, error) {
	return r.enqueue(ctx, threadID, func(ctx context.Context) (*workflow.Result, error) {
		return r.invoker.Invoke(ctx, threadID, input)
	})
}

// SubmitResume enqueues a resume command for a suspended thread.
func (r *Runner) SubmitResume(ctx context.Context, threadID string, cmd *workflow.ResumeCommand) (*Future, error) {
	return r.enqueue(ctx, threadID, func(ctx context.Context) (*workflow.Result, error) {
		return r.invoker.Resume(ctx, threadID, cmd)
	})
}

func (r *Runner) enqueue(
	ctx context.Context,
	threadID string,
	run func(ctx context.Context) (*workflow.Result, error),
) (*Future, error) {
	if threadID == "" {
		return nil, errors.New("runner: thread id is required")
	}
	t := &task{
		run:    run,
		ctx:    ctx,
		future: &Future{done: make(chan struct{})},
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.queues[threadID] = append(r.queues[threadID], t)
	start := !r.active[threadID]
	if start {
		r.active[threadID] = true
	}
	r.mu.Unlock()

	if start {
		if err := r.pool.Submit(func() { r.drain(threadID) }); err != nil {
			r.abort(threadID, err)
			return nil, fmt.Errorf("submit to worker pool: %w", err)
		}
	}
	return t.future, nil
}

// drain processes the thread's queue until it is empty, then gives the
// worker back to the pool.
func (r *Runner) drain(threadID string) {
	for {
		r.mu.Lock()
		queue := r.queues[threadID]
		if len(queue) == 0 {
			delete(r.queues, threadID)
			delete(r.active, threadID)
			r.mu.Unlock()
			return
		}
		t := queue[0]
		r.queues[threadID] = queue[1:]
		r.mu.Unlock()

		if err := t.ctx.Err(); err != nil {
			t.future.complete(nil, err)
			continue
		}
		result, err := t.run(t.ctx)
		if err != nil {
			log.Debugf("runner: thread %s event failed: %v", threadID, err)
		}
		t.future.complete(result, err)
	}
}

// abort fails every queued task of a thread.
func (r *Runner) abort(threadID string, err error) {
	r.mu.Lock()
	queue := r.queues[threadID]
	delete(r.queues, threadID)
	delete(r.active, threadID)
	r.mu.Unlock()
	for _, t := range queue {
		t.future.complete(nil, err)
	}
}

// Close stops accepting events and releases the pool once in-flight
// tasks finish.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.pool.Release()
}
