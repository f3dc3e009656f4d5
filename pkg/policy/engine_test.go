package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func cleanChannel() *ir.Channel {
	return &ir.Channel{
		ChannelID:     "ch-1",
		Title:         "ADT Feed",
		RuntimeTarget: ir.TargetCloud,
		Stages: []ir.Stage{
			{ID: "a", TemplateID: "http-listener", TemplateVersion: "1.0.0", Title: "Receive"},
			{ID: "b", TemplateID: "transform", TemplateVersion: "2.1.0", Title: "Map"},
		},
		Edges: []ir.Edge{
			{ID: "e1", From: ir.Endpoint{StageID: "a"}, To: ir.Endpoint{StageID: "b"}},
		},
	}
}

func byRule(violations []Violation, ruleID string) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.RuleID == ruleID {
			out = append(out, v)
		}
	}
	return out
}

func TestLintCleanChannelPasses(t *testing.T) {
	e := newEngine(t)
	res := e.Lint(context.Background(), cleanChannel(), DefaultOrgPolicy(), nil)

	assert.True(t, res.Passed)
	assert.Zero(t, res.Summary.Errors)
	assert.Empty(t, res.Violations)
}

func TestLintDeniedEgressBlocks(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.SecurityIntent.AllowInternetHTTPOut = true
	ch.SecurityIntent.AllowInternetTCPOut = true

	res := e.Lint(context.Background(), ch, DefaultOrgPolicy(), nil)

	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.Summary.Errors)
	require.Len(t, byRule(res.Violations, RuleInternetEgress), 2)
}

func TestLintAllowedEgressEmitsNothing(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.SecurityIntent.AllowInternetHTTPOut = true
	pol := DefaultOrgPolicy()
	pol.AllowInternetAccess = SettingAllow

	res := e.Lint(context.Background(), ch, pol, nil)

	assert.True(t, res.Passed)
	assert.Empty(t, byRule(res.Violations, RuleInternetEgress))
}

func TestLintWarnedIngressDoesNotBlock(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.SecurityIntent.AllowPublicHTTPIn = true
	pol := DefaultOrgPolicy()
	pol.AllowPublicIngress = SettingWarn

	res := e.Lint(context.Background(), ch, pol, nil)

	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Summary.Warnings)
	require.Len(t, byRule(res.Violations, RulePublicIngress), 1)
	assert.Equal(t, SeverityWarning, byRule(res.Violations, RulePublicIngress)[0].Severity)
}

func TestLintAcknowledgementUnblocks(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.SecurityIntent.AllowInternetHTTPOut = true

	res := e.Lint(context.Background(), ch, DefaultOrgPolicy(), []string{RuleInternetEgress})

	assert.True(t, res.Passed)
	assert.Zero(t, res.Summary.Errors)
	assert.Equal(t, 1, res.Summary.Acknowledged)
	require.Len(t, res.Violations, 1)
	assert.True(t, res.Violations[0].Acknowledged)
}

func TestLintStageScopedAcknowledgement(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	pol := DefaultOrgPolicy()
	pol.TemplateBlocklist = []string{"http-listener", "transform"}

	// Acknowledge only stage a's violation; stage b's still blocks.
	res := e.Lint(context.Background(), ch, pol, []string{RuleTemplateBlocked + ":a"})

	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.Summary.Errors)
	assert.Equal(t, 1, res.Summary.Acknowledged)
}

func TestLintTemplateAllowlist(t *testing.T) {
	e := newEngine(t)
	pol := DefaultOrgPolicy()
	pol.TemplateAllowlist = []string{"http-listener"}

	res := e.Lint(context.Background(), cleanChannel(), pol, nil)

	assert.False(t, res.Passed)
	vs := byRule(res.Violations, RuleTemplateUnlisted)
	require.Len(t, vs, 1)
	assert.Equal(t, "b", vs[0].StageID)
}

func TestLintVersionHygieneWarns(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.Stages[1].TemplateVersion = ""

	res := e.Lint(context.Background(), ch, DefaultOrgPolicy(), nil)

	assert.True(t, res.Passed)
	vs := byRule(res.Violations, RuleMissingVersion)
	require.Len(t, vs, 1)
	assert.Equal(t, "b", vs[0].StageID)
	assert.Equal(t, SeverityWarning, vs[0].Severity)
}

func TestLintRuntimeTargetRestriction(t *testing.T) {
	e := newEngine(t)
	pol := DefaultOrgPolicy()
	pol.AllowedRuntimeTargets = []string{"on-prem"}

	res := e.Lint(context.Background(), cleanChannel(), pol, nil)

	assert.False(t, res.Passed)
	require.Len(t, byRule(res.Violations, RuleRuntimeTarget), 1)
}

func TestLintGraphSizeLimit(t *testing.T) {
	e := newEngine(t)
	pol := DefaultOrgPolicy()
	pol.MaxStages = 1

	res := e.Lint(context.Background(), cleanChannel(), pol, nil)

	assert.True(t, res.Passed, "size violations warn by default")
	require.Len(t, byRule(res.Violations, RuleGraphSize), 1)
}

func TestLintSensitiveTemplateHeuristic(t *testing.T) {
	e := newEngine(t)
	ch := cleanChannel()
	ch.Stages = append(ch.Stages, ir.Stage{
		ID: "c", TemplateID: "mllp-sender", TemplateVersion: "1.0.0", Title: "Send",
	})
	ch.Edges = append(ch.Edges, ir.Edge{
		ID: "e2", From: ir.Endpoint{StageID: "b"}, To: ir.Endpoint{StageID: "c"},
	})

	res := e.Lint(context.Background(), ch, DefaultOrgPolicy(), nil)

	assert.True(t, res.Passed)
	vs := byRule(res.Violations, RuleSensitiveData)
	require.Len(t, vs, 1)
	assert.Equal(t, "c", vs[0].StageID)
}

func TestLintCustomCELRule(t *testing.T) {
	e := newEngine(t)
	pol := DefaultOrgPolicy()
	pol.CustomRules = []CustomRule{{
		ID:         "org.max-two-stages",
		Severity:   SeverityError,
		Expression: "channel.stageCount > 1",
		Message:    "too many stages for this org",
	}}

	res := e.Lint(context.Background(), cleanChannel(), pol, nil)

	assert.False(t, res.Passed)
	vs := byRule(res.Violations, "org.max-two-stages")
	require.Len(t, vs, 1)
	assert.Equal(t, "too many stages for this org", vs[0].Message)
}

func TestLintBrokenCustomRuleNeverCrashes(t *testing.T) {
	e := newEngine(t)
	pol := DefaultOrgPolicy()
	pol.CustomRules = []CustomRule{
		{ID: "org.bad-syntax", Expression: "channel..", Message: "x"},
		{ID: "org.not-bool", Expression: "channel.channelId", Message: "x"},
	}

	res := e.Lint(context.Background(), cleanChannel(), pol, nil)

	assert.True(t, res.Passed, "broken rules degrade to info, never block")
	assert.Equal(t, 2, res.Summary.Infos)
	for _, v := range res.Violations {
		assert.Equal(t, SeverityInfo, v.Severity)
	}
}

func TestLoadOrgPolicyOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
allowInternetAccess: warn
templateBlocklist:
  - exec-shell
maxStages: 50
`), 0o644))

	pol, err := LoadOrgPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, SettingWarn, pol.AllowInternetAccess)
	assert.Equal(t, []string{"exec-shell"}, pol.TemplateBlocklist)
	assert.Equal(t, 50, pol.MaxStages)
	// Untouched fields keep their defaults.
	assert.Equal(t, SettingDeny, pol.AllowPublicIngress)
	assert.Equal(t, 400, pol.MaxEdges)
}

func TestLoadOrgPolicyMissingFileReturnsDefaults(t *testing.T) {
	pol, err := LoadOrgPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, DefaultOrgPolicy(), pol)
}
