//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides interfaces for working with LLMs.
//
// The workflow engine treats the completion API as an opaque synchronous
// call: a request with the conversation history and the available tools goes
// in, and either text or tool calls come out. Tool results are round-tripped
// back into the message log with their correlation id before the next call.
package model

import "context"

// Model is the interface for all language models.
type Model interface {
	// GenerateContent generates a completion for the given request.
	// It blocks until the model produces a full response or fails.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
