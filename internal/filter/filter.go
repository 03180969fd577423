// Package filter evaluates CEL expressions against journal events.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled event predicate. A nil or empty Filter matches
// every event.
type Filter struct {
	expr string
	prog cel.Program
}

// Compile compiles expr. The expression sees these variables:
//
//	id     string  event id
//	code   string  event code
//	event  dyn     decoded event payload
//	text   string  raw event payload
//
// An empty expression matches everything.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("event", cel.DynType),
		cel.Variable("text", cel.StringType),
	)
	if err != nil {
		return nil, err
	}

	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse filter %q: %w", expr, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check filter %q: %w", expr, iss.Err())
	}

	out := checked.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter %q evaluates to %s, want bool", expr, out)
	}

	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match reports whether the event satisfies the filter. Evaluation errors,
// such as a missing field, count as no match.
func (f *Filter) Match(id, code string, payload []byte) bool {
	if f == nil || f.prog == nil {
		return true
	}

	var event any
	_ = json.Unmarshal(payload, &event)

	out, _, err := f.prog.Eval(map[string]any{
		"id":    id,
		"code":  code,
		"event": event,
		"text":  string(payload),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
