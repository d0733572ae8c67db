//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package customerservice

import (
	"regexp"
	"strings"
)

// Intent is the high-level routing category of a user message.
type Intent string

// Intents.
const (
	IntentRefund  Intent = "refund"
	IntentConsult Intent = "consult"
	IntentUnknown Intent = "unknown"
)

// Classification is the outcome of analyzing one user message.
type Classification struct {
	Intent Intent
	// UserInfo holds structured fields extracted from the text, such as
	// an order_id. Merged key-wise into the thread's accumulated info.
	UserInfo map[string]any
	// NeedsHuman is set when the message signals the user should be
	// handed to a human agent regardless of intent.
	NeedsHuman bool
}

// Classifier analyzes raw user text. Implementations must be pure so the
// classify step stays safely re-executable.
type Classifier interface {
	Classify(text string) Classification
}

// ClassifierFunc adapts a function into a Classifier.
type ClassifierFunc func(text string) Classification

// Classify calls f.
func (f ClassifierFunc) Classify(text string) Classification {
	return f(text)
}

var orderIDPattern = regexp.MustCompile(`(?i)(?:订单|order)[^0-9]*([0-9]{3,})`)

var angryWords = []string{
	"生气",
	"愤怒",
	"垃圾",
	"投诉",
	"差评",
	"骗子",
	"要告你",
	"气死了",
}

// ruleClassifier is the default rule-based classifier. No model call is
// involved, so classification is deterministic and free.
type ruleClassifier struct{}

// NewRuleClassifier creates the default keyword and regex based
// classifier.
func NewRuleClassifier() Classifier {
	return ruleClassifier{}
}

// Classify implements Classifier.
func (ruleClassifier) Classify(text string) Classification {
	info := make(map[string]any)
	if m := orderIDPattern.FindStringSubmatch(text); m != nil {
		info["order_id"] = m[1]
	}

	lower := strings.ToLower(text)
	var intent Intent
	switch {
	case strings.Contains(text, "退款") || strings.Contains(lower, "refund"):
		intent = IntentRefund
	case strings.TrimSpace(text) != "":
		intent = IntentConsult
	default:
		intent = IntentUnknown
	}

	var needsHuman bool
	for _, word := range angryWords {
		if strings.Contains(text, word) {
			needsHuman = true
			break
		}
	}

	return Classification{
		Intent:     intent,
		UserInfo:   info,
		NeedsHuman: needsHuman,
	}
}
