//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed checkpoint store for deployments
// where several processes serve the same threads. The sequence rule is
// enforced with an optimistic WATCH transaction on the thread's sequence
// counter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

const defaultPrefix = "flow:thread:"

// Store persists checkpoints in Redis. Per thread it keeps a sequence
// counter, the latest checkpoint blob, and one blob per sequence.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Redis store.
type Option func(*Store)

// WithPrefix sets the key prefix for thread data.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connecting to the given address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) seqKey(threadID string) string {
	return s.prefix + threadID + ":seq"
}

func (s *Store) latestKey(threadID string) string {
	return s.prefix + threadID + ":latest"
}

func (s *Store) checkpointKey(threadID string, seq int64) string {
	return s.prefix + threadID + ":cp:" + strconv.FormatInt(seq, 10)
}

// Put appends a checkpoint. The sequence counter is read under WATCH and
// all writes go through one MULTI/EXEC, so a racing writer either loses
// the transaction (retried as a fresh conflict check) or fails the
// sequence rule with ErrConflict.
func (s *Store) Put(ctx context.Context, checkpoint *workflow.Checkpoint) error {
	if checkpoint == nil {
		return errors.New("redis: checkpoint is nil")
	}
	data, err := workflow.EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}

	seqKey := s.seqKey(checkpoint.ThreadID)
	txn := func(tx *backend.Tx) error {
		last, err := tx.Get(ctx, seqKey).Int64()
		if err != nil && !errors.Is(err, backend.Nil) {
			return fmt.Errorf("read seq counter: %w", err)
		}
		if checkpoint.Seq != last+1 {
			return fmt.Errorf("thread %s: seq %d after %d: %w",
				checkpoint.ThreadID, checkpoint.Seq, last, workflow.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, seqKey, checkpoint.Seq, 0)
			pipe.Set(ctx, s.latestKey(checkpoint.ThreadID), data, 0)
			pipe.Set(ctx, s.checkpointKey(checkpoint.ThreadID, checkpoint.Seq), data, 0)
			return nil
		})
		return err
	}

	// Retry only the optimistic-lock abort; a genuine sequence conflict
	// propagates immediately.
	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, seqKey)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("thread %s: %w", checkpoint.ThreadID, workflow.ErrConflict)
}

// Latest returns the most recent checkpoint of a thread.
func (s *Store) Latest(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.latestKey(threadID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("thread %s: %w", threadID, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest checkpoint: %w", err)
	}
	return workflow.DecodeCheckpoint(data)
}

// Get returns the checkpoint at a specific sequence.
func (s *Store) Get(ctx context.Context, threadID string, seq int64) (*workflow.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(threadID, seq)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("thread %s seq %d: %w", threadID, seq, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return workflow.DecodeCheckpoint(data)
}

// DeleteThread removes all checkpoints of a thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	last, err := s.client.Get(ctx, s.seqKey(threadID)).Int64()
	if errors.Is(err, backend.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read seq counter: %w", err)
	}
	keys := make([]string, 0, last+2)
	keys = append(keys, s.seqKey(threadID), s.latestKey(threadID))
	for seq := int64(1); seq <= last; seq++ {
		keys = append(keys, s.checkpointKey(threadID, seq))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete thread keys: %w", err)
	}
	return nil
}

// Threads lists all thread IDs with at least one checkpoint.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	var ids []string
	pattern := s.prefix + "*:latest"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(s.prefix) : len(key)-len(":latest")]
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan threads: %w", err)
	}
	return ids, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var (
	_ workflow.Store        = (*Store)(nil)
	_ workflow.ThreadLister = (*Store)(nil)
)
