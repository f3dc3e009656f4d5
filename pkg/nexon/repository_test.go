package nexon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

const sampleTemplateJSON = `{
  "manifest": {"id": "http-listener", "version": "1.2.0", "title": "HTTP Listener"},
  "nodes": [{"id": "in", "type": "http in", "url": "{{ parameters.path }}"}]
}`

func sampleTemplate() *ir.Template {
	return &ir.Template{
		Manifest: ir.TemplateManifest{ID: "http-listener", Version: "1.2.0", Title: "HTTP Listener"},
		Nodes:    []map[string]any{{"id": "in", "type": "http in"}},
	}
}

type stubSource struct {
	name  string
	calls int
	fetch func(templateID, version string) (*ir.Template, error)
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, templateID, version string) (*ir.Template, error) {
	s.calls++
	return s.fetch(templateID, version)
}

func TestRepositoryCachesAfterFirstFetch(t *testing.T) {
	src := &stubSource{name: "stub", fetch: func(string, string) (*ir.Template, error) {
		return sampleTemplate(), nil
	}}
	repo := NewRepository(WithSource(src))

	first, err := repo.Fetch(context.Background(), "http-listener", "1.2.0")
	require.NoError(t, err)
	second, err := repo.Fetch(context.Background(), "http-listener", "1.2.0")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)
}

func TestRepositoryFallsThroughSources(t *testing.T) {
	miss := &stubSource{name: "miss", fetch: func(string, string) (*ir.Template, error) {
		return nil, ErrNotFound
	}}
	hit := &stubSource{name: "hit", fetch: func(string, string) (*ir.Template, error) {
		return sampleTemplate(), nil
	}}
	repo := NewRepository(WithSource(miss), WithSource(hit))

	tpl, err := repo.Fetch(context.Background(), "http-listener", "")
	require.NoError(t, err)
	assert.Equal(t, "http-listener", tpl.Manifest.ID)
	assert.Equal(t, 1, miss.calls)
	assert.Equal(t, 1, hit.calls)
}

func TestRepositoryRejectsInvalidTemplatesFromSources(t *testing.T) {
	src := &stubSource{name: "stub", fetch: func(string, string) (*ir.Template, error) {
		return &ir.Template{Nodes: []map[string]any{}}, nil
	}}
	repo := NewRepository(WithSource(src))

	_, err := repo.Fetch(context.Background(), "broken", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template")
}

func TestRepositoryNotFound(t *testing.T) {
	repo := NewRepository(WithSource(&stubSource{name: "empty", fetch: func(string, string) (*ir.Template, error) {
		return nil, ErrNotFound
	}}))

	_, err := repo.Fetch(context.Background(), "nope", "9.9.9")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheFirstWriteWins(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "a@1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "a@1.0.0", sampleTemplate()))
	replacement := sampleTemplate()
	replacement.Manifest.Title = "Replaced"
	require.NoError(t, cache.Put(ctx, "a@1.0.0", replacement))

	got, ok, err := cache.Get(ctx, "a@1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HTTP Listener", got.Manifest.Title)
}

func writeTemplateFile(t *testing.T, root, id, version, body string) {
	t.Helper()
	dir := filepath.Join(root, id, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.json"), []byte(body), 0o644))
}

func TestFSSourceResolvesExplicitAndLatestVersions(t *testing.T) {
	root := t.TempDir()
	writeTemplateFile(t, root, "http-listener", "1.2.0", sampleTemplateJSON)
	writeTemplateFile(t, root, "http-listener", "1.10.0", `{
  "manifest": {"id": "http-listener", "version": "1.10.0", "title": "HTTP Listener"},
  "nodes": []
}`)
	writeTemplateFile(t, root, "http-listener", "not-a-version", `{}`)

	src := NewFSSource(root)

	tpl, err := src.Fetch(context.Background(), "http-listener", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", tpl.Manifest.Version)

	// Latest is semver-highest, not lexicographically highest: 1.10.0 > 1.2.0.
	tpl, err = src.Fetch(context.Background(), "http-listener", "")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", tpl.Manifest.Version)

	_, err = src.Fetch(context.Background(), "missing", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPSourceFetchesAndMaps404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/templates/http-listener/latest":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(sampleTemplateJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, srv.Client(), 0)

	tpl, err := src.Fetch(context.Background(), "http-listener", "")
	require.NoError(t, err)
	assert.Equal(t, "http-listener", tpl.Manifest.ID)

	_, err = src.Fetch(context.Background(), "other", "2.0.0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeRejectsNonListNodes(t *testing.T) {
	_, err := Decode([]byte(`{"manifest": {"id": "x", "version": "1.0.0", "title": "X"}, "nodes": {"id": "single"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nodes is not a list")
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	// Missing manifest.version and an unknown top-level key.
	_, err := Decode([]byte(`{"manifest": {"id": "x", "title": "X"}, "nodes": [], "extra": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestDecodeDefaultsMissingNodesToEmptyList(t *testing.T) {
	tpl, err := Decode([]byte(`{"manifest": {"id": "x", "version": "1.0.0", "title": "X"}}`))
	require.NoError(t, err)
	assert.NotNil(t, tpl.Nodes)
	assert.Empty(t, tpl.Nodes)
}

func TestValidateAccumulatesErrors(t *testing.T) {
	res := Validate(&ir.Template{})
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 4)

	res = Validate(sampleTemplate())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}
