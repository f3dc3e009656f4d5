package subst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

func testContext() *Context {
	return &Context{
		Parameters: map[string]any{
			"host": "db.internal",
			"port": float64(5432),
			"tls":  true,
			"retry": map[string]any{
				"attempts": float64(3),
			},
		},
		Stage:   StageInfo{ID: "stage-1", Title: "Load"},
		Channel: ChannelInfo{ChannelID: "ch-1", Title: "adt-feed"},
		Runtime: &RuntimeInfo{BuildID: "build-1", Target: ir.TargetCloud},
	}
}

func TestSubstituteResolvesPlaceholdersPreservingType(t *testing.T) {
	engine := NewEngine(nil)
	in := map[string]any{
		"url":      "{{ parameters.host }}",
		"port":     "{{parameters.port}}",
		"secure":   "{{ parameters.tls }}",
		"attempts": "{{ parameters.retry.attempts }}",
		"stage":    "{{ stage.title }}",
		"build":    "{{ runtime.buildId }}",
		"plain":    "no placeholder here",
		"nested": []any{
			"{{ channel.channelId }}",
			float64(7),
		},
	}

	out, flags, err := engine.Substitute(in, testContext())
	require.NoError(t, err)
	assert.Empty(t, flags)

	got := out.(map[string]any)
	assert.Equal(t, "db.internal", got["url"])
	assert.Equal(t, float64(5432), got["port"])
	assert.Equal(t, true, got["secure"])
	assert.Equal(t, float64(3), got["attempts"])
	assert.Equal(t, "Load", got["stage"])
	assert.Equal(t, "build-1", got["build"])
	assert.Equal(t, "no placeholder here", got["plain"])
	assert.Equal(t, "ch-1", got["nested"].([]any)[0])
}

func TestSubstituteLeavesEmbeddedBracesAlone(t *testing.T) {
	engine := NewEngine(nil)
	// Only whole-string placeholders substitute; partial matches stay literal.
	out, _, err := engine.Substitute("prefix {{ parameters.host }} suffix", testContext())
	require.NoError(t, err)
	assert.Equal(t, "prefix {{ parameters.host }} suffix", out)
}

func TestSubstituteAccumulatesAllUnresolvedPaths(t *testing.T) {
	engine := NewEngine(nil)
	in := map[string]any{
		"a": "{{ parameters.missing }}",
		"b": "{{ nosuch.scope }}",
		"c": "{{ parameters.host }}",
	}

	_, _, err := engine.Substitute(in, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 unresolved placeholder(s)")
	assert.Contains(t, err.Error(), "parameters.missing")
	assert.Contains(t, err.Error(), "nosuch.scope")
}

func TestSubstitutePassesSecretRefTokensVerbatim(t *testing.T) {
	engine := NewEngine(nil)
	token := map[string]any{"type": "secretRef", "ref": "vault://db/password"}
	in := map[string]any{"password": token}

	out, flags, err := engine.Substitute(in, testContext())
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Equal(t, token, out.(map[string]any)["password"])
}

func TestSubstituteFlagsExpressionsWithoutEvaluator(t *testing.T) {
	engine := NewEngine(nil)
	token := map[string]any{"type": "expression", "expression": "parameters.port + 1"}
	in := map[string]any{"derived": token}

	out, flags, err := engine.Substitute(in, testContext())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "derived", flags[0].Path)
	assert.Equal(t, "parameters.port + 1", flags[0].Expression)
	// The raw token passes through untouched rather than being coerced.
	assert.Equal(t, token, out.(map[string]any)["derived"])
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(*Context, string) (any, error) {
	return nil, errors.New("boom")
}

func TestSubstituteFlagsEvaluatorFailures(t *testing.T) {
	engine := NewEngine(failingEvaluator{})
	in := map[string]any{
		"outer": map[string]any{
			"derived": map[string]any{"type": "expression", "expression": "1/0"},
		},
	}

	_, flags, err := engine.Substitute(in, testContext())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "outer.derived", flags[0].Path)
	assert.Contains(t, flags[0].Reason, "boom")
}

func TestCELEvaluatorEvaluatesAgainstContext(t *testing.T) {
	eval, err := NewCELEvaluator()
	require.NoError(t, err)

	out, err := eval.Evaluate(testContext(), `channel.title + "-out"`)
	require.NoError(t, err)
	assert.Equal(t, "adt-feed-out", out)

	out, err = eval.Evaluate(testContext(), `stage.id`)
	require.NoError(t, err)
	assert.Equal(t, "stage-1", out)
}

func TestCELEvaluatorReportsCompileErrors(t *testing.T) {
	eval, err := NewCELEvaluator()
	require.NoError(t, err)

	_, err = eval.Evaluate(testContext(), `this is not CEL`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile failed")
}

func TestEngineWithCELEvaluatorSubstitutesExpressions(t *testing.T) {
	eval, err := NewCELEvaluator()
	require.NoError(t, err)
	engine := NewEngine(eval)

	in := map[string]any{
		"queue": map[string]any{"type": "expression", "expression": `channel.channelId + ".in"`},
	}
	out, flags, err := engine.Substitute(in, testContext())
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Equal(t, "ch-1.in", out.(map[string]any)["queue"])
}

func TestResolveErrorsNameTheFailingSegment(t *testing.T) {
	ctx := testContext()

	_, err := ctx.Resolve("parameters.host.deeper")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not traversable")

	_, err = ctx.Resolve("stage.missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing" not found`)
}
