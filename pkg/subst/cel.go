package subst

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
)

// CELEvaluator evaluates expression tokens with a restricted CEL environment
// exposing the same scope as placeholder resolution. CEL's standard library
// is pure, so evaluation is deterministic for a fixed context.
type CELEvaluator struct {
	env *cel.Env
}

// NewCELEvaluator constructs the shared CEL environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("parameters", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("stage", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("channel", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("runtime", types.NewMapType(types.StringType, types.DynType)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("subst: creating CEL env: %w", err)
	}
	return &CELEvaluator{env: env}, nil
}

// Evaluate compiles and runs one expression against the context scope.
func (e *CELEvaluator) Evaluate(ctx *Context, expression string) (any, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("subst: expression compile failed: %w", issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("subst: expression program failed: %w", err)
	}

	input := ctx.tree()
	if _, ok := input["runtime"]; !ok {
		input["runtime"] = map[string]any{}
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return nil, fmt.Errorf("subst: expression eval failed: %w", err)
	}
	return out.Value(), nil
}
