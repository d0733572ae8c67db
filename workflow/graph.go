//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package workflow implements a resumable, checkpointed workflow engine
// for multi-step conversation threads. A workflow is a directed graph of
// steps over a shared state; every transition is persisted as a
// checkpoint, and steps may suspend the thread to wait for an external
// actor before resuming exactly where they left off.
package workflow

import (
	"context"
	"fmt"
)

const (
	// Start is the virtual source of the workflow.
	Start = "__start__"
	// End is the virtual sink of the workflow. Routing to End terminates
	// the thread.
	End = "__end__"
)

// StepFunc executes one step. It receives the current state and returns
// a delta to merge into it via the schema's reducers. Returning a
// *SuspendError pauses the thread instead of failing it.
type StepFunc func(ctx context.Context, state State) (State, error)

// RouterFunc inspects the state after a step and names the routing
// result, which the step's path map translates into the next step ID.
type RouterFunc func(ctx context.Context, state State) (string, error)

// Step is a named unit of work in the workflow.
type Step struct {
	ID          string
	Name        string
	Description string
	Function    StepFunc
}

// Router is a conditional transition out of a step.
type Router struct {
	Route RouterFunc
	// PathMap translates routing results into step IDs (or End). It must
	// cover every result the Route function can return.
	PathMap map[string]string
}

// Graph is a compiled, immutable workflow definition. Build one with a
// Builder; Compile validates the topology so that execution never hits a
// dangling edge.
type Graph struct {
	schema     *StateSchema
	steps      map[string]*Step
	edges      map[string]string
	routers    map[string]*Router
	entryPoint string
}

// Step returns a step by ID.
func (g *Graph) Step(id string) (*Step, bool) {
	step, ok := g.steps[id]
	return step, ok
}

// EntryPoint returns the ID of the entry step.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// Schema returns the state schema of the graph.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// next computes the step that follows stepID for the given state. It
// returns End when the workflow terminates, or a *RouterError when a
// router produces an unmapped result.
func (g *Graph) next(ctx context.Context, stepID string, state State) (string, error) {
	if router, ok := g.routers[stepID]; ok {
		result, err := router.Route(ctx, state)
		if err != nil {
			return "", fmt.Errorf("router at step %s: %w", stepID, err)
		}
		target, ok := router.PathMap[result]
		if !ok {
			return "", &RouterError{Step: stepID, Result: result}
		}
		return target, nil
	}
	if target, ok := g.edges[stepID]; ok {
		return target, nil
	}
	return End, nil
}

// validate checks the structural integrity of the graph.
func (g *Graph) validate() error {
	if g.entryPoint == "" {
		return &ConfigError{Reason: "entry point not set"}
	}
	if _, ok := g.steps[g.entryPoint]; !ok {
		return &ConfigError{Step: g.entryPoint, Reason: "entry point does not exist"}
	}
	for id, step := range g.steps {
		if step.Function == nil {
			return &ConfigError{Step: id, Reason: "step has no function"}
		}
	}
	for from, to := range g.edges {
		if _, ok := g.steps[from]; !ok {
			return &ConfigError{Step: from, Reason: "edge from unknown step"}
		}
		if to != End {
			if _, ok := g.steps[to]; !ok {
				return &ConfigError{Step: from, Reason: fmt.Sprintf("edge to unknown step %s", to)}
			}
		}
		if _, ok := g.routers[from]; ok {
			return &ConfigError{Step: from, Reason: "step has both an edge and a router"}
		}
	}
	for from, router := range g.routers {
		if _, ok := g.steps[from]; !ok {
			return &ConfigError{Step: from, Reason: "router from unknown step"}
		}
		if router.Route == nil {
			return &ConfigError{Step: from, Reason: "router has no route function"}
		}
		if len(router.PathMap) == 0 {
			return &ConfigError{Step: from, Reason: "router has an empty path map"}
		}
		for result, target := range router.PathMap {
			if target == End {
				continue
			}
			if _, ok := g.steps[target]; !ok {
				return &ConfigError{
					Step:   from,
					Reason: fmt.Sprintf("router result %q maps to unknown step %s", result, target),
				}
			}
		}
	}
	return nil
}
