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
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrConflict is returned by a Store when a checkpoint's sequence
	// number is not exactly one past the thread's latest sequence.
	ErrConflict = errors.New("checkpoint sequence conflict")
	// ErrNotFound is returned when a thread has no checkpoints.
	ErrNotFound = errors.New("thread not found")
	// ErrNotSuspended is returned by Resume when the thread's latest
	// checkpoint is not in the suspended status.
	ErrNotSuspended = errors.New("thread is not suspended")
	// ErrTokenMismatch is returned by Resume when a resume token is
	// supplied and does not match the pending suspension.
	ErrTokenMismatch = errors.New("resume token does not match pending suspension")
)

// ConfigError reports an invalid workflow definition detected at compile
// time, such as an edge to an unknown step or a router path map entry
// pointing nowhere.
type ConfigError struct {
	Step   string
	Reason string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("invalid workflow: %s", e.Reason)
	}
	return fmt.Sprintf("invalid workflow: step %s: %s", e.Step, e.Reason)
}

// RouterError reports a routing result that has no mapping to a next
// step. Routing is expected to be total; an unmapped result is a
// configuration bug, never a silent fallback.
type RouterError struct {
	Step   string
	Result string
}

// Error returns the error message.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router at step %s returned unmapped result %q", e.Step, e.Result)
}
