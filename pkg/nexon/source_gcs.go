package nexon

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// GCSSource serves templates from a Google Cloud Storage bucket with the
// same object layout as S3Source.
type GCSSource struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSource creates a GCS-backed template source using application
// default credentials.
func NewGCSSource(ctx context.Context, bucket, prefix string) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("nexon: creating GCS client: %w", err)
	}
	return &GCSSource{client: client, bucket: bucket, prefix: prefix}, nil
}

// Name implements Source.
func (s *GCSSource) Name() string { return "gcs:" + s.bucket }

// Fetch implements Source.
func (s *GCSSource) Fetch(ctx context.Context, templateID, version string) (*ir.Template, error) {
	object := fmt.Sprintf("%s%s/%s.json", s.prefix, templateID, versionOrLatest(version))
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs open %s: %w", object, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gcs object %s: %w", object, err)
	}
	return Decode(raw)
}
