// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/trafficai/violation-reporter/internal/geo"
)

// Static errors for configuration validation.
var (
	// ErrGeminiAPIKeyRequired is returned when analysis is needed and GEMINI_API_KEY is not set.
	ErrGeminiAPIKeyRequired = errors.New("config: GEMINI_API_KEY is required")
	// ErrInvalidConfig wraps field validation failures.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config holds all configuration for the application.
type Config struct {
	// Storage settings
	DataDir string `env:"DATA_DIR" json:"data_dir"`
	TempDir string `env:"TEMP_DIR" json:"temp_dir"`

	// Fingerprint settings
	FingerprintAlgorithm string `env:"FINGERPRINT_ALGORITHM, default=sha256" json:"fingerprint_algorithm" validate:"oneof=sha256 blake3"`

	// Frame sampling settings
	FFmpegPath      string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath     string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	FrameCount      int           `env:"FRAME_COUNT, default=5" json:"frame_count" validate:"min=1,max=60"`
	FrameInterval   float64       `env:"FRAME_INTERVAL, default=1" json:"frame_interval" validate:"gt=0"`
	SamplingTimeout time.Duration `env:"SAMPLING_TIMEOUT, default=30s" json:"sampling_timeout" validate:"gt=0"`
	ThumbnailOffset float64       `env:"THUMBNAIL_OFFSET, default=0.5" json:"thumbnail_offset" validate:"gte=0"`
	JPEGQuality     int           `env:"JPEG_QUALITY, default=80" json:"jpeg_quality" validate:"min=1,max=100"`

	// Analysis settings
	GeminiAPIKey  string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	GeminiModel   string `env:"GEMINI_MODEL, default=gemini-2.5-flash" json:"gemini_model" validate:"required"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL, default=https://generativelanguage.googleapis.com/v1beta" json:"gemini_base_url" validate:"url"`

	// Optional S3 settings for the media archive
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"S3_PREFIX, default=reports/" json:"s3_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Device location stand-in
	FallbackLatitude  string `env:"FALLBACK_LATITUDE" json:"fallback_latitude,omitempty" validate:"omitempty,latitude"`
	FallbackLongitude string `env:"FALLBACK_LONGITUDE" json:"fallback_longitude,omitempty" validate:"omitempty,longitude"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                        // "debug", "info", "warn", "error"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RequireAnalysis checks that the hosted model can be reached.
func (c *Config) RequireAnalysis() error {
	if c.GeminiAPIKey == "" {
		return ErrGeminiAPIKeyRequired
	}
	return nil
}

// DataPath returns the directory holding the report database and the local
// fingerprint registry. Defaults to ~/.violation-reporter.
func (c *Config) DataPath() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve data directory: %w", err)
	}
	return filepath.Join(home, ".violation-reporter"), nil
}

// FallbackLocation returns the configured device location, or nil when none
// is set.
func (c *Config) FallbackLocation() (*geo.Coordinate, error) {
	if c.FallbackLatitude == "" && c.FallbackLongitude == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(c.FallbackLatitude, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: FALLBACK_LATITUDE: %w", ErrInvalidConfig, err)
	}
	lng, err := strconv.ParseFloat(c.FallbackLongitude, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: FALLBACK_LONGITUDE: %w", ErrInvalidConfig, err)
	}
	return geo.New(lat, lng)
}

// NewLogger creates a structured logger based on the configuration.
// Logs go to stderr so command output on stdout stays clean.
// When LogFormat is "json", it outputs JSON logs; otherwise human-readable text.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stderr)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, TempDir: %s, FingerprintAlgorithm: %s, FrameCount: %d, FrameInterval: %g, SamplingTimeout: %s, GeminiModel: %s, GeminiAPIKeySet: %t, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.DataDir,
		c.TempDir,
		c.FingerprintAlgorithm,
		c.FrameCount,
		c.FrameInterval,
		c.SamplingTimeout,
		c.GeminiModel,
		c.GeminiAPIKey != "",
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
