//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package customerservice implements a customer-service conversation
// workflow: rule-based intent classification, a consult path, a refund
// path gated on a human approval suspension, and an emergency handoff to
// a human agent.
package customerservice

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-flow-go/action"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

// Step IDs.
const (
	StepClassifyIntent = "classify_intent"
	StepHumanHandoff   = "human_handoff"
	StepConfirmRefund  = "confirm_refund"
	StepProcessRefund  = "process_refund"
	StepRefundStatus   = "refund_status"
	StepAnswerConsult  = "answer_consult"
)

// State keys specific to this workflow, in addition to the shared
// conversation keys of the workflow package.
const (
	StateKeyUserInfo            = "user_info"
	StateKeyIntent              = "intent"
	StateKeyNeedsHuman          = "needs_human"
	StateKeyRefundDecision      = "refund_decision"
	StateKeyRefundTransactionID = "refund_transaction_id"
)

// Refund decisions.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionDeclined = "declined"
)

// ActionIssueRefund is the action name dispatched to the adapter when a
// refund is approved.
const ActionIssueRefund = "issue_refund"

// ConfirmRefundPayload is the suspend payload presented to the operator
// before a refund is issued.
type ConfirmRefundPayload struct {
	Type     string         `json:"type"`
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
}

// Workflow bundles the steps and routing of the customer-service flow.
type Workflow struct {
	classifier Classifier
	adapter    action.Adapter
}

// Option configures the workflow.
type Option func(*Workflow)

// WithClassifier replaces the default rule-based classifier.
func WithClassifier(classifier Classifier) Option {
	return func(w *Workflow) {
		w.classifier = classifier
	}
}

// Schema returns the state schema of the customer-service workflow.
func Schema() *workflow.StateSchema {
	schema := workflow.MessagesStateSchema()
	schema.AddField(StateKeyUserInfo, workflow.StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: workflow.MergeReducer,
		Default: func() any { return map[string]any{} },
	})
	schema.AddField(StateKeyIntent, workflow.StateField{
		Type:    reflect.TypeOf(""),
		Default: func() any { return string(IntentUnknown) },
	})
	schema.AddField(StateKeyNeedsHuman, workflow.StateField{
		Type:    reflect.TypeOf(false),
		Default: func() any { return false },
	})
	schema.AddField(StateKeyRefundDecision, workflow.StateField{
		Type:    reflect.TypeOf(""),
		Default: func() any { return DecisionPending },
	})
	schema.AddField(StateKeyRefundTransactionID, workflow.StateField{
		Type: reflect.TypeOf(""),
	})
	return schema
}

// NewGraph compiles the customer-service workflow over the given action
// adapter.
func NewGraph(adapter action.Adapter, opts ...Option) (*workflow.Graph, error) {
	w := &Workflow{
		classifier: NewRuleClassifier(),
		adapter:    adapter,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.adapter == nil {
		w.adapter = SimulatedRefundAdapter()
	}

	return workflow.NewBuilder(Schema()).
		AddStep(StepClassifyIntent, w.classifyIntent,
			workflow.WithDescription("intent recognition and basic info extraction")).
		AddStep(StepHumanHandoff, w.humanHandoff).
		AddStep(StepConfirmRefund, w.confirmRefund,
			workflow.WithDescription("suspends for operator approval before refunding")).
		AddStep(StepProcessRefund, w.processRefund,
			workflow.WithDescription("issues the refund, guarded by the transaction id")).
		AddStep(StepRefundStatus, w.refundStatus).
		AddStep(StepAnswerConsult, w.answerConsult).
		SetEntryPoint(StepClassifyIntent).
		AddRouter(StepClassifyIntent, routeAfterClassify, map[string]string{
			StepHumanHandoff:  StepHumanHandoff,
			StepConfirmRefund: StepConfirmRefund,
			StepRefundStatus:  StepRefundStatus,
			StepAnswerConsult: StepAnswerConsult,
		}).
		AddRouter(StepConfirmRefund, routeAfterConfirm, map[string]string{
			StepProcessRefund: StepProcessRefund,
			"end":             workflow.End,
		}).
		SetFinishPoint(StepHumanHandoff).
		SetFinishPoint(StepProcessRefund).
		SetFinishPoint(StepRefundStatus).
		SetFinishPoint(StepAnswerConsult).
		Compile()
}

// New builds an engine running the customer-service workflow on the
// given store.
func New(store workflow.Store, adapter action.Adapter, opts ...Option) (*workflow.Engine, error) {
	graph, err := NewGraph(adapter, opts...)
	if err != nil {
		return nil, err
	}
	return workflow.NewEngine(graph, store)
}

// NewUserEvent builds the input state for one raw user message.
func NewUserEvent(text string) workflow.State {
	return workflow.State{
		workflow.StateKeyUserInput: text,
		workflow.StateKeyMessages:  []model.Message{model.NewUserMessage(text)},
	}
}

// classifyIntent recognizes the intent of the latest user message and
// extracts structured info. Rule-based, no model call.
func (w *Workflow) classifyIntent(ctx context.Context, state workflow.State) (workflow.State, error) {
	classification := w.classifier.Classify(lastUserText(state))

	delta := workflow.State{
		StateKeyUserInfo:   classification.UserInfo,
		StateKeyIntent:     string(classification.Intent),
		StateKeyNeedsHuman: classification.NeedsHuman,
	}
	// A fresh refund request reopens the confirmation, unless a refund
	// was already issued for this thread.
	if classification.Intent == IntentRefund && transactionID(state) == "" {
		delta[StateKeyRefundDecision] = DecisionPending
	}
	return delta, nil
}

// humanHandoff acknowledges the handoff to a human agent.
func (w *Workflow) humanHandoff(ctx context.Context, state workflow.State) (workflow.State, error) {
	return assistantDelta("我理解你的情绪。我先为你转人工客服处理（模拟）。你可以补充订单号/问题细节。"), nil
}

// confirmRefund suspends the thread for operator approval. It is
// deliberately free of side effects: on resume the whole step re-runs,
// so everything before the Suspend call must be safe to repeat.
func (w *Workflow) confirmRefund(ctx context.Context, state workflow.State) (workflow.State, error) {
	if decision(state) != DecisionPending {
		return nil, nil
	}

	orderID, _ := userInfo(state)["order_id"].(string)
	answer, err := workflow.Suspend(ctx, state, "confirm_refund", &ConfirmRefundPayload{
		Type:     "confirm_refund",
		Question: "是否确认要发起退款？请输入 yes/no。",
		Context:  map[string]any{"order_id": orderID},
	})
	if err != nil {
		return nil, err
	}

	if !approved(answer) {
		delta := assistantDelta("好的，我不会发起退款。如需继续，请告诉我你的诉求。")
		delta[StateKeyRefundDecision] = DecisionDeclined
		return delta, nil
	}
	delta := assistantDelta("收到，我将为你发起退款（模拟）。")
	delta[StateKeyRefundDecision] = DecisionApproved
	return delta, nil
}

// processRefund issues the refund through the action adapter. The
// transaction id doubles as the idempotency guard: once present, a
// re-execution reports it instead of issuing a second refund.
func (w *Workflow) processRefund(ctx context.Context, state workflow.State) (workflow.State, error) {
	if decision(state) != DecisionApproved {
		return nil, nil
	}
	if txID := transactionID(state); txID != "" {
		return assistantDelta(fmt.Sprintf("退款已处理过（模拟）。退款单号：%s", txID)), nil
	}

	orderID, _ := userInfo(state)["order_id"].(string)
	txID, err := w.adapter.Execute(ctx, ActionIssueRefund, map[string]any{"order_id": orderID})
	if err != nil {
		return nil, err
	}
	delta := assistantDelta(fmt.Sprintf("已发起退款（模拟）。退款单号：%s", txID))
	delta[StateKeyRefundTransactionID] = txID
	return delta, nil
}

// refundStatus reports the already-issued refund.
func (w *Workflow) refundStatus(ctx context.Context, state workflow.State) (workflow.State, error) {
	txID := transactionID(state)
	if txID == "" {
		return nil, nil
	}
	return assistantDelta(fmt.Sprintf("你的退款已在处理中（模拟）。退款单号：%s", txID)), nil
}

// answerConsult handles the non-refund path.
func (w *Workflow) answerConsult(ctx context.Context, state workflow.State) (workflow.State, error) {
	return assistantDelta("我可以帮你处理咨询类问题（示例）。如果你要退款，请直接说“我要退款”，并附上订单号。"), nil
}

func routeAfterClassify(ctx context.Context, state workflow.State) (string, error) {
	if needsHuman, _ := state[StateKeyNeedsHuman].(bool); needsHuman {
		return StepHumanHandoff, nil
	}
	if intent, _ := state[StateKeyIntent].(string); intent == string(IntentRefund) {
		if transactionID(state) != "" {
			return StepRefundStatus, nil
		}
		return StepConfirmRefund, nil
	}
	return StepAnswerConsult, nil
}

func routeAfterConfirm(ctx context.Context, state workflow.State) (string, error) {
	if decision(state) == DecisionApproved {
		return StepProcessRefund, nil
	}
	return "end", nil
}

// SimulatedRefundAdapter returns an adapter that fabricates refund
// transaction ids without calling any payment system.
func SimulatedRefundAdapter() action.Adapter {
	return action.Func(func(ctx context.Context, name string, params map[string]any) (string, error) {
		orderID, _ := params["order_id"].(string)
		if orderID == "" {
			orderID = "unknown"
		}
		return fmt.Sprintf("refund_%s_%s", orderID, uuid.NewString()[:8]), nil
	})
}

// approved interprets an operator's resume value: either a bare boolean
// or a map carrying an "approved" field.
func approved(answer any) bool {
	switch v := answer.(type) {
	case bool:
		return v
	case map[string]any:
		ok, _ := v["approved"].(bool)
		return ok
	default:
		return false
	}
}

func assistantDelta(content string) workflow.State {
	return workflow.State{
		workflow.StateKeyMessages:     []model.Message{model.NewAssistantMessage(content)},
		workflow.StateKeyLastResponse: content,
	}
}

func lastUserText(state workflow.State) string {
	msgs, _ := state[workflow.StateKeyMessages].([]model.Message)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func userInfo(state workflow.State) map[string]any {
	info, _ := state[StateKeyUserInfo].(map[string]any)
	return info
}

func decision(state workflow.State) string {
	d, _ := state[StateKeyRefundDecision].(string)
	return d
}

func transactionID(state workflow.State) string {
	txID, _ := state[StateKeyRefundTransactionID].(string)
	return txID
}
