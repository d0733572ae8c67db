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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-flow-go/tool"
)

// AddLLMStep adds a step that calls the model with the conversation
// messages and appends the assistant's reply to state.
func (b *Builder) AddLLMStep(
	id string,
	llmModel model.Model,
	instruction string,
	tools map[string]tool.Tool,
	opts ...StepOption,
) *Builder {
	return b.AddStep(id, NewLLMStepFunc(llmModel, instruction, tools), opts...)
}

// AddToolsStep adds a step that executes the tool calls requested by the
// last assistant message.
func (b *Builder) AddToolsStep(id string, tools map[string]tool.Tool, opts ...StepOption) *Builder {
	return b.AddStep(id, NewToolsStepFunc(tools), opts...)
}

// AddToolsRouter adds conditional routing from an LLM step: to the tools
// step when the last message carries tool calls, to the fallback step
// (or End) otherwise.
func (b *Builder) AddToolsRouter(fromLLMStep, toToolsStep, fallback string) *Builder {
	route := func(ctx context.Context, state State) (string, error) {
		if msgs, ok := state[StateKeyMessages].([]model.Message); ok && len(msgs) > 0 {
			if len(msgs[len(msgs)-1].ToolCalls) > 0 {
				return toToolsStep, nil
			}
		}
		return fallback, nil
	}
	return b.AddRouter(fromLLMStep, route, map[string]string{
		toToolsStep: toToolsStep,
		fallback:    fallback,
	})
}

// NewLLMStepFunc creates a StepFunc that runs one model call. The reply
// is returned as a messages delta plus the last_response scalar.
func NewLLMStepFunc(llmModel model.Model, instruction string, tools map[string]tool.Tool) StepFunc {
	return func(ctx context.Context, state State) (State, error) {
		ctx, span := trace.Tracer.Start(ctx, "llm_step_execution")
		defer span.End()
		span.SetAttributes(
			attribute.String("trpc.go.flow.model_name", llmModel.Info().Name),
		)

		request := &model.Request{
			Messages: buildMessagesFromState(state, instruction),
			Tools:    tools,
		}
		response, err := llmModel.GenerateContent(ctx, request)
		if err != nil {
			span.SetAttributes(attribute.String("trpc.go.flow.error", err.Error()))
			return nil, fmt.Errorf("generate content: %w", err)
		}
		if response.Error != nil {
			span.SetAttributes(attribute.String("trpc.go.flow.error", response.Error.Message))
			return nil, fmt.Errorf("model API error: %s", response.Error.Message)
		}
		if len(response.Choices) == 0 {
			return nil, errors.New("no choices in model response")
		}

		choice := response.Choices[0]
		newMessage := model.Message{
			Role:      model.RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: choice.Message.ToolCalls,
		}
		return State{
			StateKeyMessages:     []model.Message{newMessage},
			StateKeyLastResponse: choice.Message.Content,
		}, nil
	}
}

// buildMessagesFromState assembles the model request messages: the
// optional system instruction, the accumulated conversation, and the
// current user input.
func buildMessagesFromState(state State, instruction string) []model.Message {
	var messages []model.Message
	if msgs, ok := state[StateKeyMessages].([]model.Message); ok {
		messages = msgs
	}
	if instruction != "" && (len(messages) == 0 || messages[0].Role != model.RoleSystem) {
		messages = append([]model.Message{model.NewSystemMessage(instruction)}, messages...)
	}
	if input, ok := state[StateKeyUserInput].(string); ok && input != "" {
		messages = append(messages, model.NewUserMessage(input))
	}
	return messages
}

// NewToolsStepFunc creates a StepFunc that executes every tool call of
// the last assistant message and appends the tool result messages,
// correlated by tool call ID.
func NewToolsStepFunc(tools map[string]tool.Tool) StepFunc {
	return func(ctx context.Context, state State) (State, error) {
		ctx, span := trace.Tracer.Start(ctx, "tools_step_execution")
		defer span.End()

		messages, _ := state[StateKeyMessages].([]model.Message)
		if len(messages) == 0 {
			return nil, errors.New("no messages in state")
		}
		lastMessage := messages[len(messages)-1]
		if lastMessage.Role != model.RoleAssistant {
			return nil, errors.New("last message is not an assistant message")
		}

		newMessages := make([]model.Message, 0, len(lastMessage.ToolCalls))
		for _, toolCall := range lastMessage.ToolCalls {
			id, name := toolCall.ID, toolCall.Function.Name
			t := tools[name]
			if t == nil {
				return nil, fmt.Errorf("tool %s not found", name)
			}
			result, err := runTool(ctx, toolCall, t)
			if err != nil {
				return nil, fmt.Errorf("tool %s call failed: %w", name, err)
			}
			content, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("marshal tool result: %w", err)
			}
			newMessages = append(newMessages, model.NewToolMessage(id, name, string(content)))
		}
		return State{
			StateKeyMessages: newMessages,
		}, nil
	}
}

func runTool(ctx context.Context, toolCall model.ToolCall, t tool.Tool) (any, error) {
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_tool %s", toolCall.Function.Name))
	defer span.End()
	span.SetAttributes(
		attribute.String("trpc.go.flow.tool_name", toolCall.Function.Name),
		attribute.String("trpc.go.flow.tool_id", toolCall.ID),
	)

	callableTool, ok := t.(tool.CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool %s is not callable", toolCall.Function.Name)
	}
	result, err := callableTool.Call(ctx, toolCall.Function.Arguments)
	if err != nil {
		span.SetAttributes(attribute.String("trpc.go.flow.error", err.Error()))
		return nil, err
	}
	return result, nil
}
