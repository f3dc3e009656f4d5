package nexon

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// S3Source serves templates from an S3 bucket laid out as
// <prefix><templateId>/<version>.json, with latest.json as the unpinned
// alias maintained by the publisher.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3SourceConfig holds configuration for S3Source.
type S3SourceConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// NewS3Source creates an S3-backed template source using the default AWS
// credential chain.
func NewS3Source(ctx context.Context, cfg S3SourceConfig) (*S3Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("nexon: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Source.
func (s *S3Source) Name() string { return "s3:" + s.bucket }

// Fetch implements Source.
func (s *S3Source) Fetch(ctx context.Context, templateID, version string) (*ir.Template, error) {
	key := fmt.Sprintf("%s%s/%s.json", s.prefix, templateID, versionOrLatest(version))
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object %s: %w", key, err)
	}
	return Decode(raw)
}
