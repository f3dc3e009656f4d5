package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/config"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/generate"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/nexon"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/observability"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/pipeline"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/policy"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/subst"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/validate"
)

func runCompile(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	channelPath := fs.String("channel", "", "channel document (JSON)")
	policyPath := fs.String("policy", "", "org policy file (YAML, default policy if empty)")
	outPath := fs.String("out", "bundle.tgz", "output bundle path")
	hashesPath := fs.String("hashes", "", "write bundle hashes JSON here (optional)")
	mode := fs.String("mode", "production", "compile mode: production or debug")
	compression := fs.String("compression", "gzip", "bundle compression: gzip or none")
	profile := fs.String("profile", "", "compiler profile YAML (overrides env config)")
	buildID := fs.String("build-id", "", "fixed build id for reproducible rebuilds")
	ackList := fs.String("ack", "", "comma-separated acknowledged violation ids")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *channelPath == "" {
		fmt.Fprintln(stderr, "gjc compile: -channel is required")
		return 2
	}

	ctx := context.Background()
	if *profile != "" {
		loaded, err := config.LoadProfile(*profile)
		if err != nil {
			fmt.Fprintf(stderr, "gjc compile: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	raw, err := os.ReadFile(*channelPath)
	if err != nil {
		fmt.Fprintf(stderr, "gjc compile: reading channel: %v\n", err)
		return 1
	}

	orgPolicy := policy.DefaultOrgPolicy()
	if *policyPath == "" && cfg.PolicyFile != "" {
		*policyPath = cfg.PolicyFile
	}
	if *policyPath != "" {
		orgPolicy, err = policy.LoadOrgPolicy(*policyPath)
		if err != nil {
			fmt.Fprintf(stderr, "gjc compile: %v\n", err)
			return 1
		}
	}

	p, obs, err := buildPipeline(ctx, cfg, orgPolicy)
	if err != nil {
		fmt.Fprintf(stderr, "gjc compile: %v\n", err)
		return 1
	}
	if obs != nil {
		defer obs.Shutdown(ctx)
	}

	req := &pipeline.Request{
		Channel:     raw,
		OrgID:       "local",
		UserID:      "cli",
		Mode:        ir.CompileMode(*mode),
		Compression: bundle.Compression(*compression),
		BuildID:     *buildID,
	}
	if *ackList != "" {
		req.AcknowledgedViolations = strings.Split(*ackList, ",")
	}

	result, err := p.Compile(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "gjc compile: %v\n", err)
		return 1
	}

	printSummary(stdout, result)
	if !result.Success {
		return 1
	}

	if err := os.WriteFile(*outPath, result.Bundle, 0o644); err != nil {
		fmt.Fprintf(stderr, "gjc compile: writing bundle: %v\n", err)
		return 1
	}
	if *hashesPath != "" {
		hashes := ir.BundleHashes{
			ArtifactHashes: result.ArtifactHashes,
			BundleHash:     result.BundleHash,
			MerkleRoot:     result.MerkleRoot,
			MerkleProofs:   result.MerkleProofs,
		}
		out, _ := json.MarshalIndent(hashes, "", "  ")
		if err := os.WriteFile(*hashesPath, out, 0o644); err != nil {
			fmt.Fprintf(stderr, "gjc compile: writing hashes: %v\n", err)
			return 1
		}
	}
	fmt.Fprintf(stdout, "bundle written to %s (%d bytes)\n", *outPath, len(result.Bundle))
	return 0
}

// buildPipeline assembles the full compile stack from configuration.
func buildPipeline(ctx context.Context, cfg *config.Config, orgPolicy policy.OrgPolicy) (*pipeline.Pipeline, *observability.Provider, error) {
	validator, err := validate.New()
	if err != nil {
		return nil, nil, err
	}
	linter, err := policy.NewEngine()
	if err != nil {
		return nil, nil, err
	}
	evaluator, err := subst.NewCELEvaluator()
	if err != nil {
		return nil, nil, err
	}
	repo, err := buildRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	generator := generate.New(repo, subst.NewEngine(evaluator))

	bundleDefaults := bundle.Options{Compression: bundle.CompressionGzip, IncludeMetadata: true}
	if cfg.SigningKeyFile != "" {
		key, err := loadSigningKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, nil, err
		}
		bundleDefaults.SigningKey = key
	}

	var obs *observability.Provider
	opts := []pipeline.Option{
		pipeline.WithBundleDefaults(bundleDefaults),
		pipeline.WithOrgPolicyLookup(func(context.Context, string) (policy.OrgPolicy, error) {
			return orgPolicy, nil
		}),
	}
	if cfg.Telemetry.Enabled {
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:    "gapjunction-compiler",
			ServiceVersion: pipeline.Version,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			SampleRate:     cfg.Telemetry.SampleRate,
			Enabled:        true,
			Insecure:       cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithObservability(obs))
	}

	return pipeline.New(validator, linter, generator, opts...), obs, nil
}

// buildRepository wires template cache tiers and sources from configuration.
func buildRepository(ctx context.Context, cfg *config.Config) (*nexon.Repository, error) {
	opts := []nexon.Option{nexon.WithCache(nexon.NewMemoryCache())}
	if cfg.Templates.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Templates.RedisAddr})
		opts = append(opts, nexon.WithCache(nexon.NewRedisCache(client)))
	}
	if cfg.Templates.FetchTimeout > 0 {
		opts = append(opts, nexon.WithFetchTimeout(cfg.Templates.FetchTimeout))
	}
	if cfg.Templates.Dir != "" {
		opts = append(opts, nexon.WithSource(nexon.NewFSSource(cfg.Templates.Dir)))
	}
	if cfg.Templates.RegistryURL != "" {
		opts = append(opts, nexon.WithSource(
			nexon.NewHTTPSource(cfg.Templates.RegistryURL, nil, cfg.Templates.RegistryRPS)))
	}
	if cfg.Templates.S3Bucket != "" {
		src, err := nexon.NewS3Source(ctx, nexon.S3SourceConfig{
			Bucket:   cfg.Templates.S3Bucket,
			Region:   cfg.Templates.S3Region,
			Endpoint: cfg.Templates.S3Endpoint,
			Prefix:   cfg.Templates.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, nexon.WithSource(src))
	}
	if cfg.Templates.GCSBucket != "" {
		src, err := nexon.NewGCSSource(ctx, cfg.Templates.GCSBucket, cfg.Templates.GCSPrefix)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nexon.WithSource(src))
	}
	return nexon.NewRepository(opts...), nil
}

// loadSigningKey reads a hex-encoded ed25519 key: either the 32-byte seed or
// the full 64-byte private key.
func loadSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding signing key: %w", err)
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	}
	return nil, fmt.Errorf("signing key must be %d or %d bytes, got %d",
		ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
}

func printSummary(w io.Writer, result *pipeline.Result) {
	summary := struct {
		Success    bool           `json:"success"`
		BuildID    string         `json:"buildId"`
		State      pipeline.State `json:"state"`
		Errors     []string       `json:"errors,omitempty"`
		Warnings   int            `json:"validationWarnings"`
		LintPassed *bool          `json:"lintPassed,omitempty"`
		MerkleRoot string         `json:"merkleRoot,omitempty"`
		BundleHash string         `json:"bundleHash,omitempty"`
	}{
		Success:    result.Success,
		BuildID:    result.BuildID,
		State:      result.State,
		Errors:     result.Errors,
		MerkleRoot: result.MerkleRoot,
		BundleHash: result.BundleHash,
	}
	if result.Validation != nil {
		summary.Warnings = len(result.Validation.Warnings)
	}
	if result.PolicyLint != nil {
		summary.LintPassed = &result.PolicyLint.Passed
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Fprintln(w, string(out))
}
