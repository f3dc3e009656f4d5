package policy

import (
	"fmt"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// Builtin rule ids.
const (
	RuleInternetEgress   = "net.internet-egress"
	RulePublicIngress    = "net.public-ingress"
	RuleTemplateBlocked  = "template.blocked"
	RuleTemplateUnlisted = "template.unlisted"
	RuleMissingVersion   = "template.missing-version"
	RuleRuntimeTarget    = "runtime.target"
	RuleGraphSize        = "graph.size"
	RuleMissingDocs      = "docs.missing"
	RuleSensitiveData    = "data.sensitive-handling"
)

// likelySensitiveTemplates is a fixed heuristic: templates that move data
// over the network, into storage, or out as notifications usually touch
// payloads worth reviewing.
var likelySensitiveTemplates = map[string]bool{
	"http-request":    true,
	"tcp-client":      true,
	"udp-sender":      true,
	"mllp-sender":     true,
	"file-writer":     true,
	"database-writer": true,
	"s3-upload":       true,
	"email-sender":    true,
	"sms-sender":      true,
	"webhook-out":     true,
}

func egressRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.AllowInternetAccess)
	if !emit || !ch.SecurityIntent.EgressRequested() {
		return nil
	}
	var flags []string
	if ch.SecurityIntent.AllowInternetHTTPOut {
		flags = append(flags, "allowInternetHttpOut")
	}
	if ch.SecurityIntent.AllowInternetTCPOut {
		flags = append(flags, "allowInternetTcpOut")
	}
	if ch.SecurityIntent.AllowInternetUDPOut {
		flags = append(flags, "allowInternetUdpOut")
	}
	out := make([]Violation, 0, len(flags))
	for _, flag := range flags {
		out = append(out, Violation{
			RuleID:   RuleInternetEgress,
			Severity: sev,
			Category: "network",
			Message:  fmt.Sprintf("channel requests internet egress (%s) restricted by org policy", flag),
		})
	}
	return out
}

func ingressRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.AllowPublicIngress)
	if !emit || !ch.SecurityIntent.AllowPublicHTTPIn {
		return nil
	}
	return []Violation{{
		RuleID:   RulePublicIngress,
		Severity: sev,
		Category: "network",
		Message:  "channel requests public HTTP ingress (allowHttpInPublic) restricted by org policy",
	}}
}

func templateListRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.TemplatePolicy)
	if !emit {
		return nil
	}
	blocked := make(map[string]bool, len(pol.TemplateBlocklist))
	for _, id := range pol.TemplateBlocklist {
		blocked[id] = true
	}
	allowed := make(map[string]bool, len(pol.TemplateAllowlist))
	for _, id := range pol.TemplateAllowlist {
		allowed[id] = true
	}

	var out []Violation
	for _, st := range ch.Stages {
		if blocked[st.TemplateID] {
			out = append(out, Violation{
				RuleID:   RuleTemplateBlocked,
				Severity: sev,
				Category: "template",
				Message:  fmt.Sprintf("template %q is on the org blocklist", st.TemplateID),
				StageID:  st.ID,
			})
			continue
		}
		if len(allowed) > 0 && !allowed[st.TemplateID] {
			out = append(out, Violation{
				RuleID:   RuleTemplateUnlisted,
				Severity: sev,
				Category: "template",
				Message:  fmt.Sprintf("template %q is not on the org allowlist", st.TemplateID),
				StageID:  st.ID,
			})
		}
	}
	return out
}

func versionHygieneRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.RequireTemplateVersions)
	if !emit {
		return nil
	}
	var out []Violation
	for _, st := range ch.Stages {
		if st.TemplateVersion == "" {
			out = append(out, Violation{
				RuleID:   RuleMissingVersion,
				Severity: sev,
				Category: "hygiene",
				Message:  fmt.Sprintf("stage %q uses template %q without a pinned version", st.ID, st.TemplateID),
				StageID:  st.ID,
			})
		}
	}
	return out
}

func runtimeTargetRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.RuntimeTargetPolicy)
	if !emit || len(pol.AllowedRuntimeTargets) == 0 {
		return nil
	}
	for _, target := range pol.AllowedRuntimeTargets {
		if target == string(ch.RuntimeTarget) {
			return nil
		}
	}
	return []Violation{{
		RuleID:   RuleRuntimeTarget,
		Severity: sev,
		Category: "runtime",
		Message:  fmt.Sprintf("runtime target %q is not allowed by org policy %v", ch.RuntimeTarget, pol.AllowedRuntimeTargets),
	}}
}

func graphSizeRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.GraphSizePolicy)
	if !emit {
		return nil
	}
	var out []Violation
	if pol.MaxStages > 0 && len(ch.Stages) > pol.MaxStages {
		out = append(out, Violation{
			RuleID:   RuleGraphSize,
			Severity: sev,
			Category: "graph",
			Message:  fmt.Sprintf("channel has %d stages, org limit is %d", len(ch.Stages), pol.MaxStages),
		})
	}
	if pol.MaxEdges > 0 && len(ch.Edges) > pol.MaxEdges {
		out = append(out, Violation{
			RuleID:   RuleGraphSize,
			Severity: sev,
			Category: "graph",
			Message:  fmt.Sprintf("channel has %d edges, org limit is %d", len(ch.Edges), pol.MaxEdges),
		})
	}
	return out
}

func documentationRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.RequireDocumentation)
	if !emit {
		return nil
	}
	var out []Violation
	if ch.Title == "" {
		out = append(out, Violation{
			RuleID:   RuleMissingDocs,
			Severity: sev,
			Category: "documentation",
			Message:  "channel has no title",
		})
	}
	for _, st := range ch.Stages {
		if st.Title == "" {
			out = append(out, Violation{
				RuleID:   RuleMissingDocs,
				Severity: sev,
				Category: "documentation",
				Message:  fmt.Sprintf("stage %q has no title", st.ID),
				StageID:  st.ID,
			})
		}
	}
	return out
}

func sensitiveDataRules(ch *ir.Channel, pol OrgPolicy) []Violation {
	sev, emit := severityFor(pol.SensitiveDataPolicy)
	if !emit {
		return nil
	}
	var out []Violation
	for _, st := range ch.Stages {
		if likelySensitiveTemplates[st.TemplateID] {
			out = append(out, Violation{
				RuleID:   RuleSensitiveData,
				Severity: sev,
				Category: "data",
				Message:  fmt.Sprintf("stage %q uses template %q which commonly handles sensitive payloads", st.ID, st.TemplateID),
				StageID:  st.ID,
			})
		}
	}
	return out
}
