// Package expreval evaluates the small Python expressions a Service
// descriptor embeds — skip_query, iteration_values, iteration_devices,
// preprocessing, postprocessing — against a frozen snapshot of run state.
// The source evaluates these with Python's own `eval()` against Jinja2-
// rendered text inside the running process; that is not an option here, so
// expressions are compiled and run through github.com/expr-lang/expr, a
// sandboxed expression language with no access to the host process, file
// system, or network.
package expreval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the variable set exposed to every expression, matching the
// identifiers the source's Jinja2 templates substitute: payload, device,
// the run's own properties, and results gathered so far.
type Env struct {
	Payload map[string]any `expr:"payload"`
	Device  map[string]any `expr:"device"`
	Run     map[string]any `expr:"run"`
	Results map[string]any `expr:"results"`
}

// Program is a compiled expression, cheap to evaluate repeatedly across
// devices/iterations.
type Program struct {
	program *vm.Program
	source  string
}

// Compile parses source once; the returned Program can then be evaluated
// repeatedly. The Runner compiles a service's expressions when it runs that
// service, so a malformed expression surfaces as an error during the run.
func Compile(source string) (*Program, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("expreval: compile %q: %w", source, err)
	}
	return &Program{program: program, source: source}, nil
}

// Eval runs the compiled program against env and returns the raw result.
func (p *Program) Eval(env Env) (any, error) {
	if p == nil {
		return nil, nil
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return nil, fmt.Errorf("expreval: eval %q: %w", p.source, err)
	}
	return out, nil
}

// EvalBool runs the compiled program and coerces the result to bool, the
// shape skip_query needs.
func (p *Program) EvalBool(env Env) (bool, error) {
	out, err := p.Eval(env)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("expreval: %q did not evaluate to a boolean (got %T)", p.source, out)
	}
}

// EvalSlice runs the compiled program and coerces the result to a slice of
// arbitrary values, the shape iteration_values/iteration_devices need.
func (p *Program) EvalSlice(env Env) ([]any, error) {
	out, err := p.Eval(env)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("expreval: %q did not evaluate to a list (got %T)", p.source, out)
	}
}

// EvalMap runs the compiled program and coerces the result to a map, the
// shape preprocessing/postprocessing use to merge new keys into the
// payload.
func (p *Program) EvalMap(env Env) (map[string]any, error) {
	out, err := p.Eval(env)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expreval: %q did not evaluate to a map (got %T)", p.source, out)
	}
	return m, nil
}
