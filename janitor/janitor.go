//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package janitor expires stale suspensions. The engine itself never
// times a suspension out; deployments that want approvals to lapse run a
// janitor that terminates threads suspended for longer than a cutoff.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

const (
	defaultMaxAge   = 24 * time.Hour
	defaultSchedule = "@every 1m"
	// CancelReason is recorded in the terminating checkpoint's metadata.
	CancelReason = "suspension expired"
)

// Janitor sweeps suspended threads and terminates the expired ones.
type Janitor struct {
	store    workflow.Store
	lister   workflow.ThreadLister
	maxAge   time.Duration
	schedule string
	now      func() time.Time
	cron     *cron.Cron
}

// Option configures the janitor.
type Option func(*Janitor)

// WithMaxAge sets how long a suspension may stay pending.
func WithMaxAge(maxAge time.Duration) Option {
	return func(j *Janitor) {
		if maxAge > 0 {
			j.maxAge = maxAge
		}
	}
}

// WithSchedule sets the cron schedule of the sweep.
func WithSchedule(schedule string) Option {
	return func(j *Janitor) {
		j.schedule = schedule
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// New creates a janitor over a store. The store must also list threads.
func New(store workflow.Store, opts ...Option) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("janitor: store is required")
	}
	lister, ok := store.(workflow.ThreadLister)
	if !ok {
		return nil, errors.New("janitor: store does not support listing threads")
	}
	j := &Janitor{
		store:    store,
		lister:   lister,
		maxAge:   defaultMaxAge,
		schedule: defaultSchedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start schedules periodic sweeps until Stop is called.
func (j *Janitor) Start() error {
	if j.cron != nil {
		return errors.New("janitor: already started")
	}
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			log.Errorf("janitor: sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	j.cron = c
	c.Start()
	return nil
}

// Stop halts scheduled sweeps. A sweep in progress finishes.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
		j.cron = nil
	}
}

// Sweep terminates every thread whose pending suspension is older than
// the cutoff and returns how many were expired. A conflict means someone
// resumed the thread mid-sweep; that thread is simply skipped.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	threads, err := j.lister.Threads(ctx)
	if err != nil {
		return 0, fmt.Errorf("list threads: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	expired := 0
	for _, threadID := range threads {
		latest, err := j.store.Latest(ctx, threadID)
		if errors.Is(err, workflow.ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("thread %s: %w", threadID, err)
		}
		if latest.Status != workflow.StatusSuspended || latest.Suspend == nil {
			continue
		}
		if !latest.Suspend.CreatedAt.Before(cutoff) {
			continue
		}

		if err := j.terminate(ctx, latest); err != nil {
			if errors.Is(err, workflow.ErrConflict) {
				log.Debugf("janitor: thread %s resumed during sweep", threadID)
				continue
			}
			return expired, err
		}
		expired++
		log.Infof("janitor: expired suspension on thread %s", threadID)
	}
	return expired, nil
}

func (j *Janitor) terminate(ctx context.Context, latest *workflow.Checkpoint) error {
	state := latest.State.Clone()
	metadata, _ := state[workflow.StateKeyMetadata].(map[string]any)
	merged := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["cancel_reason"] = CancelReason
	state[workflow.StateKeyMetadata] = merged

	return j.store.Put(ctx, &workflow.Checkpoint{
		ThreadID:  latest.ThreadID,
		Seq:       latest.Seq + 1,
		StepID:    latest.StepID,
		Status:    workflow.StatusTerminated,
		State:     state,
		CreatedAt: j.now().UTC(),
	})
}
