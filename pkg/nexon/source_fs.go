package nexon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// FSSource serves templates from a local directory laid out as
// <root>/<templateId>/<version>/template.json. An empty version resolves to
// the highest semantic version present.
type FSSource struct {
	root string
}

// NewFSSource creates a filesystem source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{root: dir}
}

// Name implements Source.
func (s *FSSource) Name() string { return "fs:" + s.root }

// Fetch implements Source.
func (s *FSSource) Fetch(_ context.Context, templateID, version string) (*ir.Template, error) {
	if version == "" {
		latest, err := s.latestVersion(templateID)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	path := filepath.Join(s.root, templateID, version, "template.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(raw)
}

// latestVersion picks the highest semver directory under the template root.
// Non-semver directory names are skipped rather than failing the lookup.
func (s *FSSource) latestVersion(templateID string) (string, error) {
	dir := filepath.Join(s.root, templateID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}

	var best *semver.Version
	var bestName string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestName = e.Name()
		}
	}
	if best == nil {
		return "", ErrNotFound
	}
	return bestName, nil
}
