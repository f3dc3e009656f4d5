// Package validate performs schema and semantic validation of the Channel
// IR. Schema validation (types, required fields, enum membership, tagged
// token disjointness) runs first; on schema success the typed graph is
// checked for duplicate ids, dangling edge references, orphan stages, and
// cycles. All problems from a pass are accumulated and reported together.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

//go:embed channel.schema.json
var channelSchemaJSON string

const channelSchemaURL = "https://schemas.gapjunction.io/channel.schema.json"

// Severity of a validation issue. Errors are fatal to the pipeline; warnings
// travel with a successful result.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeSchema           = "schema"
	CodeDuplicateStageID = "duplicate-stage-id"
	CodeDuplicateEdgeID  = "duplicate-edge-id"
	CodeDanglingEdge     = "dangling-edge-ref"
	CodeOrphanStage      = "orphan-stage"
	CodeCycle            = "cycle"
)

// Issue is one validation finding.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

// Result is the accumulated outcome of validating one raw channel document.
// Channel is populated only when schema validation succeeded.
type Result struct {
	Valid    bool        `json:"valid"`
	Errors   []Issue     `json:"errors,omitempty"`
	Warnings []Issue     `json:"warnings,omitempty"`
	Channel  *ir.Channel `json:"-"`
}

// Validator compiles the channel schema once and is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded channel schema.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(channelSchemaURL, strings.NewReader(channelSchemaJSON)); err != nil {
		return nil, fmt.Errorf("validate: loading channel schema: %w", err)
	}
	schema, err := c.Compile(channelSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("validate: compiling channel schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a raw channel document. Schema failures are fatal and stop
// before semantic checks; semantic fatal errors and advisory warnings are
// accumulated in one pass.
func (v *Validator) Validate(raw []byte) *Result {
	res := &Result{}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		res.Errors = append(res.Errors, Issue{
			Code:     CodeSchema,
			Severity: SeverityError,
			Message:  fmt.Sprintf("document is not valid JSON: %v", err),
		})
		return res
	}

	if err := v.schema.Validate(doc); err != nil {
		res.Errors = append(res.Errors, schemaIssues(err)...)
		return res
	}

	var ch ir.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		res.Errors = append(res.Errors, Issue{
			Code:     CodeSchema,
			Severity: SeverityError,
			Message:  fmt.Sprintf("decoding channel: %v", err),
		})
		return res
	}

	semantic(&ch, res)
	res.Valid = len(res.Errors) == 0
	if res.Valid {
		res.Channel = &ch
	}
	return res
}

// schemaIssues flattens a jsonschema validation error into issues, one per
// leaf cause, so a single pass reports every schema problem.
func schemaIssues(err error) []Issue {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Code: CodeSchema, Severity: SeverityError, Message: err.Error()}}
	}
	var out []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Issue{
				Code:     CodeSchema,
				Severity: SeverityError,
				Message:  e.Message,
				Path:     e.InstanceLocation,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
