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

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprRule is one clause of an expression-based router: when the When
// expression evaluates to true against the thread state, the router
// routes to GoTo. An empty When always matches and is typically used as
// the final default clause.
type ExprRule struct {
	When string
	GoTo string
}

type compiledExprRule struct {
	program *vm.Program
	goTo    string
}

// AddExprRouter adds a conditional transition whose routing logic is
// written as expr-lang expressions over the state map. State keys are
// available as top-level variables. Rules are evaluated in order and the
// first match wins; expressions are compiled at build time so malformed
// rules fail Compile, not a live thread.
func (b *Builder) AddExprRouter(from string, rules []ExprRule) *Builder {
	if len(rules) == 0 {
		b.errs = append(b.errs, &ConfigError{Step: from, Reason: "expression router has no rules"})
		return b
	}
	compiled := make([]compiledExprRule, 0, len(rules))
	pathMap := make(map[string]string, len(rules))
	for i, rule := range rules {
		if rule.GoTo == "" {
			b.errs = append(b.errs, &ConfigError{
				Step:   from,
				Reason: fmt.Sprintf("expression rule %d has no target", i),
			})
			return b
		}
		var program *vm.Program
		if rule.When != "" {
			var err error
			program, err = expr.Compile(rule.When,
				expr.Env(map[string]any{}),
				expr.AllowUndefinedVariables(),
				expr.AsBool(),
			)
			if err != nil {
				b.errs = append(b.errs, &ConfigError{
					Step:   from,
					Reason: fmt.Sprintf("expression rule %d: %v", i, err),
				})
				return b
			}
		}
		compiled = append(compiled, compiledExprRule{program: program, goTo: rule.GoTo})
		pathMap[rule.GoTo] = rule.GoTo
	}
	route := func(ctx context.Context, state State) (string, error) {
		env := exprEnv(state)
		for _, rule := range compiled {
			if rule.program == nil {
				return rule.goTo, nil
			}
			out, err := vm.Run(rule.program, env)
			if err != nil {
				return "", fmt.Errorf("evaluate routing rule: %w", err)
			}
			if matched, ok := out.(bool); ok && matched {
				return rule.goTo, nil
			}
		}
		return "", fmt.Errorf("no routing rule matched")
	}
	return b.AddRouter(from, route, pathMap)
}

// exprEnv exposes the state as the expression environment, leaving out
// internal bookkeeping keys.
func exprEnv(state State) map[string]any {
	env := make(map[string]any, len(state))
	for k, v := range state {
		if isInternalStateKey(k) {
			continue
		}
		env[k] = v
	}
	return env
}
