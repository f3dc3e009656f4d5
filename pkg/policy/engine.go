package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// Engine runs the builtin rule groups and any org-defined CEL rules. It is
// stateless apart from the shared CEL environment and safe for concurrent
// lints.
type Engine struct {
	celEnv *cel.Env
	logger *slog.Logger
}

// NewEngine builds the engine and its CEL environment for custom rules.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("channel", types.NewMapType(types.StringType, types.DynType)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: creating CEL env: %w", err)
	}
	return &Engine{
		celEnv: env,
		logger: slog.Default().With("component", "policy"),
	}, nil
}

// Lint evaluates every rule group against the channel. Violations whose key
// appears in acknowledged are marked and excluded from the pass/fail counts.
func (e *Engine) Lint(ctx context.Context, ch *ir.Channel, pol OrgPolicy, acknowledged []string) *LintResult {
	var violations []Violation
	violations = append(violations, egressRules(ch, pol)...)
	violations = append(violations, ingressRules(ch, pol)...)
	violations = append(violations, templateListRules(ch, pol)...)
	violations = append(violations, versionHygieneRules(ch, pol)...)
	violations = append(violations, runtimeTargetRules(ch, pol)...)
	violations = append(violations, graphSizeRules(ch, pol)...)
	violations = append(violations, documentationRules(ch, pol)...)
	violations = append(violations, sensitiveDataRules(ch, pol)...)
	violations = append(violations, e.customRules(ctx, ch, pol)...)

	acked := make(map[string]bool, len(acknowledged))
	for _, id := range acknowledged {
		acked[id] = true
	}

	result := &LintResult{Violations: violations}
	for i := range result.Violations {
		v := &result.Violations[i]
		if acked[v.Key()] || acked[v.RuleID] {
			v.Acknowledged = true
			result.Summary.Acknowledged++
			continue
		}
		switch v.Severity {
		case SeverityError:
			result.Summary.Errors++
		case SeverityWarning:
			result.Summary.Warnings++
		case SeverityInfo:
			result.Summary.Infos++
		}
	}
	result.Passed = result.Summary.Errors == 0

	e.logger.InfoContext(ctx, "lint complete",
		"channel", ch.ChannelID,
		"passed", result.Passed,
		"errors", result.Summary.Errors,
		"warnings", result.Summary.Warnings,
		"acknowledged", result.Summary.Acknowledged)
	return result
}

// customRules compiles and evaluates each org CEL rule against a flattened
// channel summary. A broken rule must not crash a lint: compile or eval
// failures emit an info-severity violation naming the rule instead.
func (e *Engine) customRules(ctx context.Context, ch *ir.Channel, pol OrgPolicy) []Violation {
	if len(pol.CustomRules) == 0 {
		return nil
	}
	input := map[string]any{"channel": channelSummary(ch)}

	var out []Violation
	for _, rule := range pol.CustomRules {
		ast, issues := e.celEnv.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			out = append(out, customRuleFailure(rule, "compile", issues.Err()))
			continue
		}
		prg, err := e.celEnv.Program(ast)
		if err != nil {
			out = append(out, customRuleFailure(rule, "program", err))
			continue
		}
		val, _, err := prg.Eval(input)
		if err != nil {
			out = append(out, customRuleFailure(rule, "eval", err))
			continue
		}
		matched, ok := val.Value().(bool)
		if !ok {
			out = append(out, customRuleFailure(rule, "result",
				fmt.Errorf("expression yielded %T, want bool", val.Value())))
			continue
		}
		if matched {
			sev := rule.Severity
			if sev == "" {
				sev = SeverityWarning
			}
			out = append(out, Violation{
				RuleID:   rule.ID,
				Severity: sev,
				Category: "custom",
				Message:  rule.Message,
			})
		}
	}
	return out
}

func customRuleFailure(rule CustomRule, phase string, err error) Violation {
	return Violation{
		RuleID:   rule.ID,
		Severity: SeverityInfo,
		Category: "custom",
		Message:  fmt.Sprintf("custom rule %s failed at %s: %v", rule.ID, phase, err),
	}
}

// channelSummary flattens the channel into the CEL input scope.
func channelSummary(ch *ir.Channel) map[string]any {
	templateIDs := make([]string, 0, len(ch.Stages))
	for _, st := range ch.Stages {
		templateIDs = append(templateIDs, st.TemplateID)
	}
	return map[string]any{
		"channelId":     ch.ChannelID,
		"title":         ch.Title,
		"runtimeTarget": string(ch.RuntimeTarget),
		"stageCount":    len(ch.Stages),
		"edgeCount":     len(ch.Edges),
		"templateIds":   templateIDs,
		"security": map[string]any{
			"allowInternetHttpOut": ch.SecurityIntent.AllowInternetHTTPOut,
			"allowInternetTcpOut":  ch.SecurityIntent.AllowInternetTCPOut,
			"allowInternetUdpOut":  ch.SecurityIntent.AllowInternetUDPOut,
			"allowHttpInPublic":    ch.SecurityIntent.AllowPublicHTTPIn,
		},
	}
}
