//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory checkpoint store. It is the
// default for tests and single-process deployments; history is lost on
// restart.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

// Store keeps each thread's checkpoints ordered by sequence in memory.
type Store struct {
	mu         sync.RWMutex
	threads    map[string][]*workflow.Checkpoint
	maxPerKeep int
}

// Option configures the in-memory store.
type Option func(*Store)

// WithMaxCheckpointsPerThread caps history per thread. Older snapshots
// beyond the cap are dropped; the latest is always retained, and the
// sequence rule still applies against it.
func WithMaxCheckpointsPerThread(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerKeep = n
		}
	}
}

// NewStore creates a new in-memory checkpoint store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		threads: make(map[string][]*workflow.Checkpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put appends a checkpoint, enforcing that its sequence is exactly one
// past the thread's latest.
func (s *Store) Put(ctx context.Context, checkpoint *workflow.Checkpoint) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.threads[checkpoint.ThreadID]
	var last int64
	if len(history) > 0 {
		last = history[len(history)-1].Seq
	}
	if checkpoint.Seq != last+1 {
		return fmt.Errorf("thread %s: seq %d after %d: %w",
			checkpoint.ThreadID, checkpoint.Seq, last, workflow.ErrConflict)
	}

	history = append(history, checkpoint.Clone())
	if s.maxPerKeep > 0 && len(history) > s.maxPerKeep {
		history = history[len(history)-s.maxPerKeep:]
	}
	s.threads[checkpoint.ThreadID] = history
	return nil
}

// Latest returns the most recent checkpoint of a thread.
func (s *Store) Latest(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.threads[threadID]
	if !ok || len(history) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, workflow.ErrNotFound)
	}
	return history[len(history)-1].Clone(), nil
}

// Get returns the checkpoint at a specific sequence, if retained.
func (s *Store) Get(ctx context.Context, threadID string, seq int64) (*workflow.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, checkpoint := range s.threads[threadID] {
		if checkpoint.Seq == seq {
			return checkpoint.Clone(), nil
		}
	}
	return nil, fmt.Errorf("thread %s seq %d: %w", threadID, seq, workflow.ErrNotFound)
}

// DeleteThread removes all checkpoints of a thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Threads lists all thread IDs with at least one checkpoint.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the store. The in-memory store has nothing to release.
func (s *Store) Close() error {
	return nil
}

var (
	_ workflow.Store        = (*Store)(nil)
	_ workflow.ThreadLister = (*Store)(nil)
)
