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
	"encoding/json"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

// Status is the lifecycle status of a thread as recorded in its latest
// checkpoint.
type Status string

const (
	// StatusRunning means the thread is mid-execution.
	StatusRunning Status = "RUNNING"
	// StatusSuspended means the thread is paused waiting for an external
	// actor to call Resume.
	StatusSuspended Status = "SUSPENDED"
	// StatusTerminated means the thread reached the end of the workflow.
	// State is retained but no further steps will execute until a new
	// input event arrives.
	StatusTerminated Status = "TERMINATED"
)

// SuspendRequest describes a pending suspension: what the workflow is
// asking the external actor for, and the token that pins a subsequent
// resume to this particular suspension.
type SuspendRequest struct {
	Token     string    `json:"token"`
	StepID    string    `json:"step_id"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is a full snapshot of a thread at one point of execution.
// Seq starts at 1 and increases by exactly one per persisted snapshot;
// StepID names the step to execute next (or re-execute, when suspended).
type Checkpoint struct {
	ThreadID  string          `json:"thread_id"`
	Seq       int64           `json:"seq"`
	StepID    string          `json:"step_id"`
	Status    Status          `json:"status"`
	State     State           `json:"state"`
	Suspend   *SuspendRequest `json:"suspend,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone creates a copy of the checkpoint with an isolated state map.
func (c *Checkpoint) Clone() *Checkpoint {
	clone := *c
	clone.State = c.State.Clone()
	if c.Suspend != nil {
		suspend := *c.Suspend
		clone.Suspend = &suspend
	}
	return &clone
}

// Store persists checkpoints. Implementations must enforce the sequence
// rule atomically: Put succeeds only when the checkpoint's Seq is exactly
// one past the thread's current latest (or 1 for a new thread), returning
// ErrConflict otherwise. This makes concurrent writers for one thread
// serialize through the store.
type Store interface {
	// Put appends a checkpoint to the thread's history.
	Put(ctx context.Context, checkpoint *Checkpoint) error
	// Latest returns the thread's most recent checkpoint, or ErrNotFound.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// DeleteThread removes all checkpoints of a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases resources held by the store.
	Close() error
}

// ThreadLister is an optional Store capability used by maintenance jobs
// that need to sweep over all known threads.
type ThreadLister interface {
	Threads(ctx context.Context) ([]string, error)
}

// EncodeCheckpoint serializes a checkpoint to JSON for storage backends.
func EncodeCheckpoint(checkpoint *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint deserializes a checkpoint produced by EncodeCheckpoint
// and restores the Go types of well-known state fields that JSON erases.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if err := restoreStateTypes(checkpoint.State); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// restoreStateTypes re-types state fields whose concrete Go types matter
// to reducers and steps. JSON decoding turns []model.Message into []any,
// which would defeat MessageReducer on the next update.
func restoreStateTypes(state State) error {
	raw, exists := state[StateKeyMessages]
	if !exists || raw == nil {
		return nil
	}
	if _, ok := raw.([]model.Message); ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("restore messages: %w", err)
	}
	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("restore messages: %w", err)
	}
	state[StateKeyMessages] = messages
	return nil
}
