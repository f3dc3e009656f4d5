package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/generate"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/nexon"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/policy"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/subst"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/validate"
)

const listenerTemplate = `{
  "manifest": {"id": "http-listener", "version": "1.0.0", "title": "HTTP Listener"},
  "nodes": [
    {"id": "in", "type": "http in", "url": "{{ parameters.path }}", "x": 10, "y": 20, "wires": [["reply"]]},
    {"id": "reply", "type": "http response", "x": 200, "y": 20, "wires": []}
  ]
}`

const writerTemplate = `{
  "manifest": {"id": "file-writer", "version": "1.0.0", "title": "File Writer"},
  "nodes": [
    {"id": "w", "type": "file out", "token": {"type": "secretRef", "ref": "vault://fs/token"}, "x": 0, "y": 0, "wires": []}
  ]
}`

func writeTemplate(t *testing.T, root, id, version, body string) {
	t.Helper()
	dir := filepath.Join(root, id, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.json"), []byte(body), 0o644))
}

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	root := t.TempDir()
	writeTemplate(t, root, "http-listener", "1.0.0", listenerTemplate)
	writeTemplate(t, root, "file-writer", "1.0.0", writerTemplate)

	validator, err := validate.New()
	require.NoError(t, err)
	linter, err := policy.NewEngine()
	require.NoError(t, err)
	eval, err := subst.NewCELEvaluator()
	require.NoError(t, err)

	repo := nexon.NewRepository(nexon.WithSource(nexon.NewFSSource(root)))
	gen := generate.New(repo, subst.NewEngine(eval))
	return New(validator, linter, gen, opts...)
}

func channelJSON() json.RawMessage {
	return json.RawMessage(`{
  "channelId": "ch-1",
  "title": "ADT Feed",
  "runtimeTarget": "cloud",
  "stages": [
    {"id": "recv", "templateId": "http-listener", "templateVersion": "1.0.0", "title": "Receive",
     "params": {"path": "/adt"}, "position": {"x": 100, "y": 50}},
    {"id": "write", "templateId": "file-writer", "templateVersion": "1.0.0", "title": "Write",
     "position": {"x": 400, "y": 50}}
  ],
  "edges": [
    {"id": "e1", "from": {"stageId": "recv"}, "to": {"stageId": "write"}}
  ]
}`)
}

func TestCompileHappyPath(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Compile(context.Background(), &Request{Channel: channelJSON(), OrgID: "org-1"})
	require.NoError(t, err)

	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.BuildID)
	assert.NotEmpty(t, res.Bundle)
	assert.NotEmpty(t, res.MerkleRoot)
	assert.Len(t, res.MerkleProofs, 4)
	assert.Equal(t, 4, res.Metadata.ArtifactCount)
	assert.Equal(t, int64(len(res.Bundle)), res.Metadata.BundleSize)

	require.NotNil(t, res.CompiledArtifacts)
	extracted, err := bundle.ExtractBytes(res.Bundle, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ch-1", extracted.Artifacts.Manifest.ChannelID)
	assert.Contains(t, extracted.Artifacts.CredentialsMap.Credentials, "write.token")
}

func TestCompileSuppliedBuildIDIsReproducible(t *testing.T) {
	p := newPipeline(t, WithBundleDefaults(bundle.Options{Compression: bundle.CompressionNone}))

	req := func() *Request {
		return &Request{Channel: channelJSON(), OrgID: "org-1", BuildID: "build-fixed"}
	}
	a, err := p.Compile(context.Background(), req())
	require.NoError(t, err)
	b, err := p.Compile(context.Background(), req())
	require.NoError(t, err)

	require.True(t, a.Success)
	assert.Equal(t, a.Bundle, b.Bundle)
	assert.Equal(t, a.BundleHash, b.BundleHash)
	assert.Equal(t, a.MerkleRoot, b.MerkleRoot)
}

func TestCompileFailsValidationBeforeLint(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Compile(context.Background(), &Request{
		Channel: json.RawMessage(`{"channelId": "ch-1"}`),
		OrgID:   "org-1",
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateValidating, res.FailedStage)
	require.NotNil(t, res.Validation)
	assert.NotEmpty(t, res.Validation.Errors)
	assert.Nil(t, res.PolicyLint)
	assert.Empty(t, res.Bundle)
}

func TestCompileBlockedByPolicy(t *testing.T) {
	p := newPipeline(t)

	doc := []byte(`{
  "channelId": "ch-1",
  "title": "Egress",
  "runtimeTarget": "cloud",
  "securityIntent": {"allowInternetHttpOut": true},
  "stages": [{"id": "recv", "templateId": "http-listener", "templateVersion": "1.0.0", "title": "Receive", "position": {"x": 0, "y": 0}}],
  "edges": []
}`)
	res, err := p.Compile(context.Background(), &Request{Channel: doc, OrgID: "org-1"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StateLinting, res.FailedStage)
	require.NotNil(t, res.PolicyLint)
	assert.False(t, res.PolicyLint.Passed)

	// Acknowledging the violation unblocks the same request.
	res, err = p.Compile(context.Background(), &Request{
		Channel:                doc,
		OrgID:                  "org-1",
		AcknowledgedViolations: []string{policy.RuleInternetEgress},
	})
	require.NoError(t, err)
	assert.True(t, res.Success, "errors: %v", res.Errors)
}

func TestCompileUsesOrgPolicyLookup(t *testing.T) {
	called := false
	p := newPipeline(t, WithOrgPolicyLookup(func(_ context.Context, orgID string) (policy.OrgPolicy, error) {
		called = true
		assert.Equal(t, "org-lenient", orgID)
		pol := policy.DefaultOrgPolicy()
		pol.AllowInternetAccess = policy.SettingAllow
		return pol, nil
	}))

	doc := []byte(`{
  "channelId": "ch-1",
  "title": "Egress",
  "runtimeTarget": "cloud",
  "securityIntent": {"allowInternetHttpOut": true},
  "stages": [{"id": "recv", "templateId": "http-listener", "templateVersion": "1.0.0", "title": "Receive", "position": {"x": 0, "y": 0}}],
  "edges": []
}`)
	res, err := p.Compile(context.Background(), &Request{Channel: doc, OrgID: "org-lenient"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, res.Success, "errors: %v", res.Errors)
}

func TestCompileMissingTemplateDegradesToFallback(t *testing.T) {
	p := newPipeline(t)

	doc := []byte(`{
  "channelId": "ch-1",
  "title": "Feed",
  "runtimeTarget": "cloud",
  "stages": [
    {"id": "recv", "templateId": "http-listener", "templateVersion": "1.0.0", "title": "Receive", "params": {"path": "/adt"}, "position": {"x": 0, "y": 0}},
    {"id": "gone", "templateId": "no-such-template", "templateVersion": "1.0.0", "title": "Gone", "position": {"x": 200, "y": 0}}
  ],
  "edges": [{"id": "e1", "from": {"stageId": "recv"}, "to": {"stageId": "gone"}}]
}`)
	res, err := p.Compile(context.Background(), &Request{Channel: doc, OrgID: "org-1"})
	require.NoError(t, err)

	require.True(t, res.Success, "a degraded stage still compiles: %v", res.Errors)
	require.NotNil(t, res.CompiledArtifacts)
	require.Len(t, res.CompiledArtifacts.Fallbacks, 1)
	assert.Equal(t, "gone", res.CompiledArtifacts.Fallbacks[0].StageID)
}

func TestCompileRejectsEmptyRequest(t *testing.T) {
	p := newPipeline(t)

	_, err := p.Compile(context.Background(), nil)
	require.Error(t, err)
	_, err = p.Compile(context.Background(), &Request{})
	require.Error(t, err)
}

func TestCompileRequestCompressionOverride(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Compile(context.Background(), &Request{
		Channel:     channelJSON(),
		OrgID:       "org-1",
		Compression: bundle.CompressionNone,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	// Uncompressed bundles are plain tar, not gzip.
	require.GreaterOrEqual(t, len(res.Bundle), 2)
	assert.False(t, res.Bundle[0] == 0x1f && res.Bundle[1] == 0x8b)
}
