//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package workflow

// Builder provides a fluent API for constructing workflow graphs.
// Validation is deferred to Compile so definitions read as one chain.
type Builder struct {
	graph *Graph
	errs  []error
}

// NewBuilder creates a new workflow builder with the given state schema.
func NewBuilder(schema *StateSchema) *Builder {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &Builder{
		graph: &Graph{
			schema:  schema,
			steps:   make(map[string]*Step),
			edges:   make(map[string]string),
			routers: make(map[string]*Router),
		},
	}
}

// StepOption configures a step added to the builder.
type StepOption func(*Step)

// WithName sets a human-readable name for the step.
func WithName(name string) StepOption {
	return func(s *Step) {
		s.Name = name
	}
}

// WithDescription sets a description for the step.
func WithDescription(description string) StepOption {
	return func(s *Step) {
		s.Description = description
	}
}

// AddStep adds a step to the workflow.
func (b *Builder) AddStep(id string, function StepFunc, opts ...StepOption) *Builder {
	if _, exists := b.graph.steps[id]; exists {
		b.errs = append(b.errs, &ConfigError{Step: id, Reason: "step already exists"})
		return b
	}
	step := &Step{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(step)
	}
	b.graph.steps[id] = step
	return b
}

// AddEdge adds an unconditional transition between two steps.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, exists := b.graph.edges[from]; exists {
		b.errs = append(b.errs, &ConfigError{Step: from, Reason: "step already has an edge"})
		return b
	}
	b.graph.edges[from] = to
	return b
}

// AddRouter adds a conditional transition out of a step. The path map
// must cover every result the route function can return; an unmapped
// result at runtime is a RouterError, never a fallback.
func (b *Builder) AddRouter(from string, route RouterFunc, pathMap map[string]string) *Builder {
	if _, exists := b.graph.routers[from]; exists {
		b.errs = append(b.errs, &ConfigError{Step: from, Reason: "step already has a router"})
		return b
	}
	b.graph.routers[from] = &Router{Route: route, PathMap: pathMap}
	return b
}

// SetEntryPoint marks the step that new input events start from.
func (b *Builder) SetEntryPoint(id string) *Builder {
	b.graph.entryPoint = id
	return b
}

// SetFinishPoint marks a step whose completion terminates the thread.
func (b *Builder) SetFinishPoint(id string) *Builder {
	return b.AddEdge(id, End)
}

// Compile validates the workflow definition and returns the immutable
// graph. Structural problems are reported as *ConfigError.
func (b *Builder) Compile() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := b.graph.validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}

// MustCompile is like Compile but panics on error. Intended for
// workflow definitions constructed at program start.
func (b *Builder) MustCompile() *Graph {
	graph, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}
