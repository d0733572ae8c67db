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
	"fmt"
	"time"
)

// Internal state keys used by the suspend/resume machinery. They are
// stripped from state before it is persisted into checkpoints.
const (
	stateKeyResumeValue  = "__resume_value__"
	stateKeyUsedSuspends = "__used_suspends__"
)

func isInternalStateKey(key string) bool {
	switch key {
	case stateKeyResumeValue, stateKeyUsedSuspends:
		return true
	default:
		return false
	}
}

// SuspendError signals that a step wants to pause the thread and wait for
// an external actor. The engine converts it into a suspended checkpoint
// rather than treating it as a failure.
type SuspendError struct {
	// Payload is the value that was passed to Suspend, describing what
	// the external actor is being asked for.
	Payload any
	// StepID is the ID of the step where the suspension occurred.
	StepID string
	// Timestamp is when the suspension occurred.
	Timestamp time.Time
}

// Error returns the error message for the suspension.
func (e *SuspendError) Error() string {
	return fmt.Sprintf("workflow suspended at step %s: %v", e.StepID, e.Payload)
}

// NewSuspendError creates a new SuspendError with the given payload.
func NewSuspendError(payload any) *SuspendError {
	return &SuspendError{
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// IsSuspendError checks if an error is a SuspendError.
func IsSuspendError(err error) bool {
	_, ok := err.(*SuspendError)
	return ok
}

// AsSuspendError extracts a SuspendError from an error.
func AsSuspendError(err error) (*SuspendError, bool) {
	if suspend, ok := err.(*SuspendError); ok {
		return suspend, true
	}
	return nil, false
}

// Suspend pauses execution at the current step. On first execution it
// returns a SuspendError carrying the payload; when the step re-executes
// after Resume, it returns the resume value instead.
//
// The key distinguishes multiple Suspend call sites within one step. If
// the step calls Suspend with the same key again in the same invocation,
// the previously consumed resume value is returned, keeping re-execution
// deterministic.
func Suspend(ctx context.Context, state State, key string, payload any) (any, error) {
	usedMap, _ := state[stateKeyUsedSuspends].(map[string]any)
	if usedMap == nil {
		usedMap = make(map[string]any)
		state[stateKeyUsedSuspends] = usedMap
	}

	if usedValue, exists := usedMap[key]; exists {
		return usedValue, nil
	}

	if resumeValue, exists := state[stateKeyResumeValue]; exists {
		usedMap[key] = resumeValue
		// Clear the resume value to avoid reusing it for other keys.
		delete(state, stateKeyResumeValue)
		return resumeValue, nil
	}

	return nil, NewSuspendError(payload)
}

// ResumeValue extracts the pending resume value from the state with type
// safety, without raising a suspension when absent.
func ResumeValue[T any](state State) (T, bool) {
	var zero T
	if resumeValue, exists := state[stateKeyResumeValue]; exists {
		if typedValue, ok := resumeValue.(T); ok {
			delete(state, stateKeyResumeValue)
			return typedValue, true
		}
	}
	return zero, false
}

// ResumeCommand carries the input for resuming a suspended thread.
type ResumeCommand struct {
	// Value is the external actor's answer, surfaced to the suspended
	// step through Suspend.
	Value any
	// Token optionally pins the command to one specific suspension. When
	// set, it must match the token of the pending SuspendRequest.
	Token string
}

// NewResumeCommand creates a new resume command.
func NewResumeCommand() *ResumeCommand {
	return &ResumeCommand{}
}

// WithValue sets the resume value.
func (c *ResumeCommand) WithValue(value any) *ResumeCommand {
	c.Value = value
	return c
}

// WithToken sets the resume token.
func (c *ResumeCommand) WithToken(token string) *ResumeCommand {
	c.Token = token
	return c
}
