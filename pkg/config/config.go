// Package config holds compiler configuration, loaded from environment
// variables with optional YAML profile files layered on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the channel compiler.
type Config struct {
	LogLevel   string `yaml:"logLevel"`
	PolicyFile string `yaml:"policyFile"`

	Templates TemplateConfig  `yaml:"templates"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// SigningKeyFile points at a hex-encoded ed25519 private key used to
	// sign bundle metadata. Empty disables signing.
	SigningKeyFile string `yaml:"signingKeyFile"`
}

// TemplateConfig configures the template repository: local directory plus
// optional remote sources and a shared Redis cache.
type TemplateConfig struct {
	Dir          string        `yaml:"dir"`
	RegistryURL  string        `yaml:"registryUrl"`
	RegistryRPS  float64       `yaml:"registryRps"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	RedisAddr string `yaml:"redisAddr"`

	S3Bucket   string `yaml:"s3Bucket"`
	S3Region   string `yaml:"s3Region"`
	S3Endpoint string `yaml:"s3Endpoint"`
	S3Prefix   string `yaml:"s3Prefix"`

	GCSBucket string `yaml:"gcsBucket"`
	GCSPrefix string `yaml:"gcsPrefix"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRate   float64 `yaml:"sampleRate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		LogLevel:   envOr("GJ_LOG_LEVEL", "info"),
		PolicyFile: os.Getenv("GJ_POLICY_FILE"),
		Templates: TemplateConfig{
			Dir:          envOr("GJ_TEMPLATE_DIR", "./nexons"),
			RegistryURL:  os.Getenv("GJ_TEMPLATE_REGISTRY_URL"),
			RegistryRPS:  envFloat("GJ_TEMPLATE_REGISTRY_RPS", 5),
			FetchTimeout: envDuration("GJ_TEMPLATE_FETCH_TIMEOUT", 10*time.Second),
			RedisAddr:    os.Getenv("GJ_TEMPLATE_REDIS_ADDR"),
			S3Bucket:     os.Getenv("GJ_TEMPLATE_S3_BUCKET"),
			S3Region:     envOr("GJ_TEMPLATE_S3_REGION", "us-east-1"),
			S3Endpoint:   os.Getenv("GJ_TEMPLATE_S3_ENDPOINT"),
			S3Prefix:     os.Getenv("GJ_TEMPLATE_S3_PREFIX"),
			GCSBucket:    os.Getenv("GJ_TEMPLATE_GCS_BUCKET"),
			GCSPrefix:    os.Getenv("GJ_TEMPLATE_GCS_PREFIX"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("GJ_TELEMETRY_ENABLED") == "true",
			OTLPEndpoint: envOr("GJ_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   envFloat("GJ_TELEMETRY_SAMPLE_RATE", 1.0),
			Insecure:     os.Getenv("GJ_TELEMETRY_INSECURE") == "true",
		},
		SigningKeyFile: os.Getenv("GJ_SIGNING_KEY_FILE"),
	}
}

// LoadProfile layers a YAML profile file over the environment-derived
// configuration, so a profile only states what it changes.
func LoadProfile(path string) (*Config, error) {
	cfg := Load()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing profile %s: %w", path, err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level string onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
