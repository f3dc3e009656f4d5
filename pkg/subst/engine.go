package subst

import (
	"fmt"
	"regexp"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// placeholderRe matches a string that is exactly one delimited placeholder.
// Placeholders replace the whole string, so a resolved value keeps its type.
var placeholderRe = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)

// ExpressionEvaluator evaluates a deferred expression token against the
// substitution context. Implementations must be deterministic for a fixed
// (context, expression) pair.
type ExpressionEvaluator interface {
	Evaluate(ctx *Context, expression string) (any, error)
}

// Flag reports a non-fatal limitation encountered during substitution,
// currently always an expression token left unevaluated.
type Flag struct {
	Path       string `json:"path"`
	Expression string `json:"expression"`
	Reason     string `json:"reason"`
}

// Engine performs deep, order-preserving substitution over JSON structures.
// A nil evaluator is legal: expression tokens are then passed through
// verbatim and flagged, never silently coerced to literals.
type Engine struct {
	eval ExpressionEvaluator
}

// NewEngine builds an engine with the given expression hook (may be nil).
func NewEngine(eval ExpressionEvaluator) *Engine {
	return &Engine{eval: eval}
}

// Substitute resolves every placeholder in value against ctx. Unresolvable
// placeholder paths are hard errors and are accumulated so one pass reports
// them all. The returned flags list every expression token that was not
// evaluated.
func (e *Engine) Substitute(value any, ctx *Context) (any, []Flag, error) {
	w := &walker{engine: e, ctx: ctx}
	out := w.walk(value, "")
	if len(w.errs) > 0 {
		return nil, w.flags, fmt.Errorf("subst: %d unresolved placeholder(s): %w", len(w.errs), joinErrors(w.errs))
	}
	return out, w.flags, nil
}

type walker struct {
	engine *Engine
	ctx    *Context
	errs   []error
	flags  []Flag
}

func (w *walker) walk(v any, path string) any {
	// Tagged tokens are terminal: secrets pass through verbatim, expressions
	// go to the evaluator hook.
	if tok, ok := ir.ClassifyToken(v); ok {
		switch tok.Kind {
		case ir.ParamSecretRef:
			return v
		case ir.ParamExpression:
			return w.evaluate(tok.Expression, v, path)
		}
	}

	switch t := v.(type) {
	case string:
		if m := placeholderRe.FindStringSubmatch(t); m != nil {
			resolved, err := w.ctx.Resolve(m[1])
			if err != nil {
				w.errs = append(w.errs, err)
				return nil
			}
			// A parameter may itself hold an expression token; it still goes
			// through the evaluator. Secret tokens stay verbatim.
			if tok, ok := ir.ClassifyToken(resolved); ok && tok.Kind == ir.ParamExpression {
				return w.evaluate(tok.Expression, resolved, path)
			}
			return resolved
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = w.walk(child, joinPath(path, k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = w.walk(child, fmt.Sprintf("%s[%d]", path, i))
		}
		return out
	default:
		return v
	}
}

func (w *walker) evaluate(expression string, raw any, path string) any {
	if w.engine.eval == nil {
		w.flags = append(w.flags, Flag{
			Path:       path,
			Expression: expression,
			Reason:     "no expression evaluator configured",
		})
		return raw
	}
	out, err := w.engine.eval.Evaluate(w.ctx, expression)
	if err != nil {
		w.flags = append(w.flags, Flag{
			Path:       path,
			Expression: expression,
			Reason:     err.Error(),
		})
		return raw
	}
	return out
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := errs[0].Error()
	for _, err := range errs[1:] {
		msg += "; " + err.Error()
	}
	return fmt.Errorf("%s", msg)
}
