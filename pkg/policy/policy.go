// Package policy evaluates organizational security, compliance, and hygiene
// rules against a validated channel. Each org setting is deny, warn, or
// allow: deny produces an error-severity violation that blocks compilation,
// warn produces a warning, and allow suppresses the rule entirely.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Setting is the per-rule organizational stance.
type Setting string

const (
	SettingDeny  Setting = "deny"
	SettingWarn  Setting = "warn"
	SettingAllow Setting = "allow"
)

// Severity of an emitted violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// severityFor maps a setting to the severity it emits. The false return
// means the rule is suppressed.
func severityFor(s Setting) (Severity, bool) {
	switch s {
	case SettingDeny:
		return SeverityError, true
	case SettingWarn:
		return SeverityWarning, true
	default:
		return "", false
	}
}

// CustomRule is an org-authored CEL rule evaluated against a channel
// summary. The expression must yield a boolean; true emits a violation.
type CustomRule struct {
	ID         string   `yaml:"id" json:"id"`
	Severity   Severity `yaml:"severity" json:"severity"`
	Expression string   `yaml:"expression" json:"expression"`
	Message    string   `yaml:"message" json:"message"`
}

// OrgPolicy is the complete rule configuration for one organization.
// The zero value is not useful; start from DefaultOrgPolicy.
type OrgPolicy struct {
	AllowInternetAccess Setting `yaml:"allowInternetAccess" json:"allowInternetAccess"`
	AllowPublicIngress  Setting `yaml:"allowPublicIngress" json:"allowPublicIngress"`

	TemplatePolicy    Setting  `yaml:"templatePolicy" json:"templatePolicy"`
	TemplateAllowlist []string `yaml:"templateAllowlist,omitempty" json:"templateAllowlist,omitempty"`
	TemplateBlocklist []string `yaml:"templateBlocklist,omitempty" json:"templateBlocklist,omitempty"`

	RequireTemplateVersions Setting `yaml:"requireTemplateVersions" json:"requireTemplateVersions"`

	RuntimeTargetPolicy   Setting  `yaml:"runtimeTargetPolicy" json:"runtimeTargetPolicy"`
	AllowedRuntimeTargets []string `yaml:"allowedRuntimeTargets,omitempty" json:"allowedRuntimeTargets,omitempty"`

	GraphSizePolicy Setting `yaml:"graphSizePolicy" json:"graphSizePolicy"`
	MaxStages       int     `yaml:"maxStages,omitempty" json:"maxStages,omitempty"`
	MaxEdges        int     `yaml:"maxEdges,omitempty" json:"maxEdges,omitempty"`

	RequireDocumentation Setting `yaml:"requireDocumentation" json:"requireDocumentation"`
	SensitiveDataPolicy  Setting `yaml:"sensitiveDataPolicy" json:"sensitiveDataPolicy"`

	CustomRules []CustomRule `yaml:"customRules,omitempty" json:"customRules,omitempty"`
}

// DefaultOrgPolicy is the default-deny posture: exposure needs an explicit
// organizational opt-out, hygiene rules warn.
func DefaultOrgPolicy() OrgPolicy {
	return OrgPolicy{
		AllowInternetAccess:     SettingDeny,
		AllowPublicIngress:      SettingDeny,
		TemplatePolicy:          SettingDeny,
		RequireTemplateVersions: SettingWarn,
		RuntimeTargetPolicy:     SettingDeny,
		GraphSizePolicy:         SettingWarn,
		MaxStages:               200,
		MaxEdges:                400,
		RequireDocumentation:    SettingWarn,
		SensitiveDataPolicy:     SettingWarn,
	}
}

// LoadOrgPolicy reads an org policy YAML file over the defaults, so a file
// only has to state what it changes.
func LoadOrgPolicy(path string) (OrgPolicy, error) {
	pol := DefaultOrgPolicy()
	raw, err := os.ReadFile(path)
	if err != nil {
		return pol, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &pol); err != nil {
		return pol, fmt.Errorf("policy: parsing %s: %w", path, err)
	}
	return pol, nil
}

// Violation is one policy finding.
type Violation struct {
	RuleID       string   `json:"ruleId"`
	Severity     Severity `json:"severity"`
	Category     string   `json:"category"`
	Message      string   `json:"message"`
	StageID      string   `json:"stageId,omitempty"`
	Acknowledged bool     `json:"acknowledged"`
}

// Key is the identifier acknowledgements match against: the rule id, or
// "<ruleId>:<stageId>" for stage-scoped findings.
func (v Violation) Key() string {
	if v.StageID == "" {
		return v.RuleID
	}
	return v.RuleID + ":" + v.StageID
}

// Summary counts violations by severity. Acknowledged violations are
// excluded from the severity counts used for pass/fail.
type Summary struct {
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
	Infos        int `json:"infos"`
	Acknowledged int `json:"acknowledged"`
}

// LintResult is the outcome of one policy evaluation. Passed is true when no
// unacknowledged error-severity violation remains; warnings and infos never
// block compilation.
type LintResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}
