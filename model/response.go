//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package model

import "time"

// Error type constants for response errors.
const (
	ErrorTypeAPIError      = "api_error"
	ErrorTypeInvalidReqErr = "invalid_request_error"
)

// Choice represents one generated completion.
type Choice struct {
	// Index of the choice in the response.
	Index int `json:"index"`
	// Message is the generated message.
	Message Message `json:"message"`
	// FinishReason is the reason generation stopped (e.g. "stop", "tool_calls").
	FinishReason string `json:"finish_reason,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseError is an API-level error returned by the model service.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Response is the response from the model.
type Response struct {
	ID        string         `json:"id,omitempty"`
	Model     string         `json:"model,omitempty"`
	Created   int64          `json:"created,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Choices   []Choice       `json:"choices,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// HasToolCalls reports whether the first choice requests tool calls.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.Choices) > 0 && len(r.Choices[0].Message.ToolCalls) > 0
}
