//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package action abstracts the external side effects a workflow step may
// perform, such as issuing a refund in a payment system. Steps call
// adapters through this interface so side effects stay mockable and each
// execution can be guarded with state for idempotent re-execution.
package action

import (
	"context"
	"fmt"
	"sync"
)

// Adapter executes a named external action and returns an opaque
// reference (a transaction or ticket ID) identifying the effect.
type Adapter interface {
	Execute(ctx context.Context, name string, params map[string]any) (string, error)
}

// Func adapts a plain function into an Adapter.
type Func func(ctx context.Context, name string, params map[string]any) (string, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	return f(ctx, name, params)
}

// Error wraps a failure of one external action.
type Error struct {
	Action string
	Err    error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Registry dispatches actions by name to registered adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an action name to an adapter, replacing any previous
// binding.
func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

// Execute dispatches to the adapter registered under name.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return "", &Error{Action: name, Err: fmt.Errorf("no adapter registered")}
	}
	result, err := adapter.Execute(ctx, name, params)
	if err != nil {
		return "", &Error{Action: name, Err: err}
	}
	return result, nil
}

var _ Adapter = (*Registry)(nil)
