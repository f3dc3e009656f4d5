// Package nexon fetches, validates, and caches the reusable code-generation
// templates ("nexons") that channel stages instantiate. Lookup order is
// cache tiers first, then configured sources (filesystem, HTTP, S3, GCS); a
// hit from any source back-fills every cache tier. Cache entries are
// immutable once inserted and live for the process (or for the external
// store's lifetime); there is no eviction in this design.
package nexon

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

//go:embed template.schema.json
var templateSchemaJSON string

// templateSchema guards the wire shape of fetched templates before the typed
// decode can paper over a malformed document.
var templateSchema = jsonschema.MustCompileString(
	"https://schemas.gapjunction.io/template.schema.json", templateSchemaJSON)

// ErrNotFound reports that a source does not hold the requested template.
// Sources return it to let the repository fall through to the next source.
var ErrNotFound = errors.New("nexon: template not found")

// DefaultFetchTimeout bounds a single remote fetch.
const DefaultFetchTimeout = 10 * time.Second

// Source supplies templates from one backing store.
type Source interface {
	// Name identifies the source in logs and error chains.
	Name() string
	// Fetch returns the template, ErrNotFound, or a transport error.
	// version "" means latest.
	Fetch(ctx context.Context, templateID, version string) (*ir.Template, error)
}

// Cache is one tier of template caching, keyed by "<id>@<version-or-latest>".
type Cache interface {
	Get(ctx context.Context, key string) (*ir.Template, bool, error)
	Put(ctx context.Context, key string, t *ir.Template) error
}

// Repository is the injected template lookup used by the generator. It is
// safe for concurrent use by parallel compiles.
type Repository struct {
	caches  []Cache
	sources []Source
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithCache appends a cache tier; tiers are consulted in add order.
func WithCache(c Cache) Option {
	return func(r *Repository) { r.caches = append(r.caches, c) }
}

// WithSource appends a source; sources are tried in add order.
func WithSource(s Source) Option {
	return func(r *Repository) { r.sources = append(r.sources, s) }
}

// WithFetchTimeout overrides the per-fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

// NewRepository builds a repository. With no explicit cache an in-memory
// tier is installed, so the zero configuration still caches per process.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		timeout: DefaultFetchTimeout,
		logger:  slog.Default().With("component", "nexon"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.caches) == 0 {
		r.caches = []Cache{NewMemoryCache()}
	}
	return r
}

// Fetch resolves a template by id and optional version.
func (r *Repository) Fetch(ctx context.Context, templateID, version string) (*ir.Template, error) {
	if templateID == "" {
		return nil, fmt.Errorf("nexon: empty template id")
	}
	key := ir.Key(templateID, version)

	for i, cache := range r.caches {
		t, ok, err := cache.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "cache lookup failed", "key", key, "tier", i, "error", err)
			continue
		}
		if ok {
			// Back-fill the faster tiers in front of this one.
			r.fill(ctx, key, t, i)
			return t, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var errs []error
	for _, src := range r.sources {
		t, err := src.Fetch(ctx, templateID, version)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if res := Validate(t); !res.Valid {
			errs = append(errs, fmt.Errorf("%s: invalid template %s: %v", src.Name(), key, res.Errors))
			continue
		}
		r.fill(ctx, key, t, len(r.caches))
		return t, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("nexon: fetching %s: %w", key, errors.Join(errs...))
	}
	return nil, fmt.Errorf("nexon: %s: %w", key, ErrNotFound)
}

// fill writes t into cache tiers [0, upto).
func (r *Repository) fill(ctx context.Context, key string, t *ir.Template, upto int) {
	for i := 0; i < upto && i < len(r.caches); i++ {
		if err := r.caches[i].Put(ctx, key, t); err != nil {
			r.logger.WarnContext(ctx, "cache fill failed", "key", key, "tier", i, "error", err)
		}
	}
}

// ValidationResult reports template-manifest completeness.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks that a template's manifest is complete and its node list
// is present. Errors are accumulated, not short-circuited.
func Validate(t *ir.Template) ValidationResult {
	var errs []string
	if t == nil {
		return ValidationResult{Errors: []string{"template is nil"}}
	}
	if t.Manifest.ID == "" {
		errs = append(errs, "manifest.id is required")
	}
	if t.Manifest.Version == "" {
		errs = append(errs, "manifest.version is required")
	}
	if t.Manifest.Title == "" {
		errs = append(errs, "manifest.title is required")
	}
	if t.Nodes == nil {
		errs = append(errs, "nodes must be a list")
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Decode parses raw template JSON, rejecting documents whose nodes field is
// not a JSON array before the typed unmarshal can mask it.
func Decode(raw []byte) (*ir.Template, error) {
	var shape struct {
		Manifest json.RawMessage `json:"manifest"`
		Nodes    json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("nexon: decoding template: %w", err)
	}
	if len(shape.Nodes) > 0 {
		var probe []json.RawMessage
		if err := json.Unmarshal(shape.Nodes, &probe); err != nil {
			return nil, fmt.Errorf("nexon: template nodes is not a list: %w", err)
		}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("nexon: decoding template: %w", err)
	}
	if err := templateSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("nexon: template does not match schema: %w", err)
	}

	var t ir.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("nexon: decoding template: %w", err)
	}
	if t.Nodes == nil {
		t.Nodes = []map[string]any{}
	}
	return &t, nil
}
