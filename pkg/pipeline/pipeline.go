// Package pipeline orchestrates a compile request through its linear state
// machine: Validating -> Linting -> Generating -> Bundling -> Done, with
// Failed reachable from any state. Each request is an independent,
// stateless pass over its own channel; only the template cache inside the
// repository is shared between concurrent compiles.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/generate"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/identifier"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/observability"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/policy"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/validate"
)

// State names the pipeline phases.
type State string

const (
	StateValidating State = "validating"
	StateLinting    State = "linting"
	StateGenerating State = "generating"
	StateBundling   State = "bundling"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// OrgPolicyLookup resolves the policy configuration for an organization.
type OrgPolicyLookup func(ctx context.Context, orgID string) (policy.OrgPolicy, error)

// Pipeline wires the compile components together. Construct one per process
// and share it; every dependency it holds is safe for concurrent use.
type Pipeline struct {
	validator *validate.Validator
	linter    *policy.Engine
	generator *generate.Generator
	policies  OrgPolicyLookup
	obs       *observability.Provider
	bundling  bundle.Options
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOrgPolicyLookup installs the org policy resolver. Without one, every
// org gets the default-deny policy.
func WithOrgPolicyLookup(lookup OrgPolicyLookup) Option {
	return func(p *Pipeline) { p.policies = lookup }
}

// WithObservability attaches tracing and metrics.
func WithObservability(obs *observability.Provider) Option {
	return func(p *Pipeline) { p.obs = obs }
}

// WithBundleDefaults sets process-wide bundling options (compression,
// metadata, signing key). Per-request compression overrides the default.
func WithBundleDefaults(opts bundle.Options) Option {
	return func(p *Pipeline) { p.bundling = opts }
}

// New assembles a pipeline around the injected generator dependencies.
func New(validator *validate.Validator, linter *policy.Engine, generator *generate.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		validator: validator,
		linter:    linter,
		generator: generator,
		policies: func(context.Context, string) (policy.OrgPolicy, error) {
			return policy.DefaultOrgPolicy(), nil
		},
		bundling: bundle.Options{Compression: bundle.CompressionGzip, IncludeMetadata: true},
		logger:   slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile runs one request to a terminal state. It never returns a Go error
// for compile-level failures; those are encoded in the result. The error
// return is reserved for a malformed request (nil channel document).
func (p *Pipeline) Compile(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || len(req.Channel) == 0 {
		return nil, fmt.Errorf("pipeline: request has no channel document")
	}

	buildID := req.BuildID
	if buildID == "" {
		buildID = identifier.NewBuildID()
	}
	res := &Result{BuildID: buildID, State: StateValidating}
	started := time.Now()
	if p.obs != nil {
		p.obs.CompileStarted(ctx)
		defer func() {
			p.obs.CompileFinished(ctx, res.Success, string(res.FailedStage), time.Since(started))
		}()
	}
	log := p.logger.With("buildId", buildID, "orgId", req.OrgID)

	// Validating
	ch, ok := p.runValidate(ctx, req, res)
	if !ok {
		log.WarnContext(ctx, "compile failed validation", "errors", len(res.Validation.Errors))
		return res, nil
	}

	// Linting
	res.State = StateLinting
	if !p.runLint(ctx, req, ch, res) {
		log.WarnContext(ctx, "compile blocked by policy", "violations", len(res.PolicyLint.Violations))
		return res, nil
	}

	// Generating and Bundling run third-party template code paths; an
	// unexpected panic there must surface as a classified failure, not
	// take the worker down.
	if err := p.runGuarded(ctx, req, ch, res); err != nil {
		res.fail(res.State, fmt.Sprintf("internal error: %v", err))
		log.ErrorContext(ctx, "compile failed", "state", res.FailedStage, "error", err)
		return res, nil
	}

	res.State = StateDone
	res.Success = true
	log.InfoContext(ctx, "compile done",
		"channel", ch.ChannelID,
		"bundleSize", res.Metadata.BundleSize,
		"merkleRoot", res.MerkleRoot,
		"duration", time.Since(started))
	return res, nil
}

func (p *Pipeline) runValidate(ctx context.Context, req *Request, res *Result) (*ir.Channel, bool) {
	_, span := p.span(ctx, "compile.validate")
	defer span.End()

	res.Validation = p.validator.Validate(req.Channel)
	if !res.Validation.Valid {
		res.fail(StateValidating, "channel failed schema or semantic validation")
		return nil, false
	}
	return res.Validation.Channel, true
}

func (p *Pipeline) runLint(ctx context.Context, req *Request, ch *ir.Channel, res *Result) bool {
	ctx, span := p.span(ctx, "compile.lint", attribute.String("channel.id", ch.ChannelID))
	defer span.End()

	orgPolicy, err := p.policies(ctx, req.OrgID)
	if err != nil {
		res.fail(StateLinting, fmt.Sprintf("resolving org policy: %v", err))
		return false
	}
	res.PolicyLint = p.linter.Lint(ctx, ch, orgPolicy, req.AcknowledgedViolations)
	if !res.PolicyLint.Passed {
		res.fail(StateLinting, "unacknowledged policy errors block compilation")
		return false
	}
	return true
}

// runGuarded covers Generating and Bundling under a panic guard.
func (p *Pipeline) runGuarded(ctx context.Context, req *Request, ch *ir.Channel, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "panic in compile pipeline",
				"state", res.State, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	res.State = StateGenerating
	genCtx, genSpan := p.span(ctx, "compile.generate", attribute.String("channel.id", ch.ChannelID))
	gen, err := p.generator.Generate(genCtx, ch, generate.Options{
		BuildID: res.BuildID,
		Mode:    req.mode(),
		Target:  ch.RuntimeTarget,
	})
	genSpan.End()
	if err != nil {
		return fmt.Errorf("generating artifacts: %w", err)
	}
	res.CompiledArtifacts = gen

	res.State = StateBundling
	_, bundleSpan := p.span(ctx, "compile.bundle")
	opts := p.bundling
	opts.BuildID = res.BuildID
	if req.Compression != "" {
		opts.Compression = req.Compression
	}
	b, err := bundle.Create(&gen.Artifacts, opts)
	bundleSpan.End()
	if err != nil {
		return fmt.Errorf("creating bundle: %w", err)
	}

	res.Bundle = b.Bytes
	res.ArtifactHashes = b.Hashes.ArtifactHashes
	res.BundleHash = b.Hashes.BundleHash
	res.MerkleRoot = b.Hashes.MerkleRoot
	res.MerkleProofs = b.Hashes.MerkleProofs
	res.Metadata = Metadata{
		LintErrors:      res.PolicyLint.Summary.Errors,
		LintWarnings:    res.PolicyLint.Summary.Warnings,
		BundleSize:      b.Size,
		ArtifactCount:   len(ir.ArtifactOrder),
		CompilerVersion: Version,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	return nil
}

func (p *Pipeline) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p.obs != nil {
		return p.obs.StartSpan(ctx, name, attrs...)
	}
	return noopTracer.Start(ctx, name)
}

var noopTracer = noop.NewTracerProvider().Tracer("gapjunction.compiler")
