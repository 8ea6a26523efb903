package metadata

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule kinds.
const (
	RuleValidate = "validate" // expression must evaluate truthy, else Message is reported at Field
	RuleCompute  = "compute"  // expression result is written to Field after the main pass
)

// Rule is a type-level expression rule evaluated by the mapper with the
// environment {record, old, action}. Expressions are compiled once at
// registration, never at call time.
type Rule struct {
	Field      string `json:"field"`
	Kind       string `json:"kind"`
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`

	program *vm.Program
}

// RuleEnv builds the evaluation environment for a rule run.
func RuleEnv(record, old map[string]any, isCreate bool) map[string]any {
	action := "update"
	if isCreate {
		action = "create"
	}
	return map[string]any{
		"record": record,
		"old":    old,
		"action": action,
	}
}

// Compile compiles the rule's expression. Called during registration;
// a compile failure is a configuration error.
func (r *Rule) Compile() error {
	if r.Expression == "" {
		return fmt.Errorf("rule for field %s has no expression", r.Field)
	}
	switch r.Kind {
	case RuleValidate, RuleCompute:
	default:
		return fmt.Errorf("rule for field %s has unknown kind %q", r.Field, r.Kind)
	}
	prog, err := expr.Compile(r.Expression)
	if err != nil {
		return fmt.Errorf("compile rule for field %s: %w", r.Field, err)
	}
	r.program = prog
	return nil
}

// Run evaluates the compiled expression against env.
func (r *Rule) Run(env map[string]any) (any, error) {
	if r.program == nil {
		return nil, fmt.Errorf("rule for field %s was not compiled", r.Field)
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate rule for field %s: %w", r.Field, err)
	}
	return out, nil
}

// FailMessage returns the message reported when a validate rule fails.
func (r *Rule) FailMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("field %s failed validation", r.Field)
}
