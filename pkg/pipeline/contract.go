package pipeline

import (
	"encoding/json"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/generate"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/policy"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/validate"
)

// Request is one compile submission. The transport layer (out of scope
// here) decodes its envelope into this shape.
type Request struct {
	Channel                json.RawMessage    `json:"channel"`
	OrgID                  string             `json:"orgId"`
	UserID                 string             `json:"userId"`
	AcknowledgedViolations []string           `json:"acknowledgedViolations,omitempty"`
	Mode                   ir.CompileMode     `json:"mode,omitempty"`
	Compression            bundle.Compression `json:"compression,omitempty"`
	// BuildID may be supplied for reproducible rebuilds; normally minted.
	BuildID string `json:"buildId,omitempty"`
}

func (r *Request) mode() ir.CompileMode {
	if r.Mode == "" {
		return ir.ModeProduction
	}
	return r.Mode
}

// Version identifies the compiler release in result metadata and telemetry.
const Version = "1.0.0"

// Metadata summarizes a successful compile for the caller.
type Metadata struct {
	LintErrors      int    `json:"lintErrors"`
	LintWarnings    int    `json:"lintWarnings"`
	BundleSize      int64  `json:"bundleSize"`
	ArtifactCount   int    `json:"artifactCount"`
	CompilerVersion string `json:"compilerVersion"`
	Timestamp       string `json:"timestamp"`
}

// Result is the terminal outcome of one compile. On failure the fields up
// to the failed stage are populated (validation output always, lint output
// from Linting onward) and Errors carries the classification; artifacts and
// hashes are present only on success.
type Result struct {
	Success     bool   `json:"success"`
	BuildID     string `json:"buildId"`
	State       State  `json:"state"`
	FailedStage State  `json:"failedStage,omitempty"`

	Validation *validate.Result   `json:"validation,omitempty"`
	PolicyLint *policy.LintResult `json:"policyLint,omitempty"`

	Bundle         []byte              `json:"bundle,omitempty"`
	ArtifactHashes ir.ArtifactHashes   `json:"artifactHashes,omitempty"`
	BundleHash     string              `json:"bundleHash,omitempty"`
	MerkleRoot     string              `json:"merkleRoot,omitempty"`
	MerkleProofs   map[string][]string `json:"merkleProofs,omitempty"`

	Metadata          Metadata         `json:"metadata"`
	CompiledArtifacts *generate.Result `json:"compiledArtifacts,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// fail records a terminal failure at the given stage.
func (r *Result) fail(stage State, msg string) {
	r.State = StateFailed
	r.FailedStage = stage
	r.Errors = append(r.Errors, msg)
}
