// Package bootstrap provides dependency initialization for the violation reporter.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/config"
	"github.com/trafficai/violation-reporter/internal/dedup"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
	"github.com/trafficai/violation-reporter/internal/report"
	"github.com/trafficai/violation-reporter/internal/storage"
)

// Options adjust wiring for one invocation.
type Options struct {
	// Location overrides the configured fallback device location.
	Location *geo.Coordinate
}

// Dependencies holds all initialized dependencies for the CLI.
type Dependencies struct {
	Hasher   *fingerprint.Hasher
	Sampler  *media.Sampler
	Storage  storage.Storage
	Registry *dedup.FileRegistry
	Reports  *report.SQLRepository
	Locator  geo.Locator
	Reporter *report.SubmitService
}

// NewDependencies creates and initializes all dependencies for the application.
// Callers must Close the result.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Dependencies, error) {
	dataDir, err := cfg.DataPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	hasher, err := fingerprint.NewHasher(fingerprint.Algorithm(cfg.FingerprintAlgorithm))
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, dataDir, logger)
	if err != nil {
		return nil, err
	}

	sampler := NewSampler(cfg, store, logger)

	// Both registries must hold digests of the configured algorithm or no
	// stored fingerprint would ever match again.
	registry, err := dedup.OpenFileRegistry(filepath.Join(dataDir, dedup.DefaultFileName), hasher.Algorithm(), logger)
	if err != nil {
		return nil, fmt.Errorf("open fingerprint registry: %w", err)
	}

	reports, err := report.OpenSQLite(filepath.Join(dataDir, report.DefaultDatabaseName), logger)
	if err != nil {
		return nil, err
	}
	if err := reports.BindAlgorithm(ctx, hasher.Algorithm()); err != nil {
		_ = reports.Close()
		return nil, err
	}

	locator, err := NewLocator(cfg, opts)
	if err != nil {
		_ = reports.Close()
		return nil, err
	}

	deps := report.SubmitDeps{
		Hasher:  hasher,
		Guard:   dedup.NewGuard(registry, reports, logger),
		Sampler: sampler,
		Locator: locator,
		Archive: store,
		Repo:    reports,
		Logger:  logger,
	}
	if cfg.RequireAnalysis() == nil {
		client, err := analysis.NewGeminiClient(
			analysis.WithAPIKey(cfg.GeminiAPIKey),
			analysis.WithModel(cfg.GeminiModel),
			analysis.WithBaseURL(cfg.GeminiBaseURL),
			analysis.WithLogger(logger),
		)
		if err != nil {
			_ = reports.Close()
			return nil, fmt.Errorf("create analysis client: %w", err)
		}
		deps.Classifier = client
		deps.Stations = client
	} else {
		logger.Debug("analysis disabled, GEMINI_API_KEY not set")
	}

	reporter := report.NewSubmitService(deps)
	reporter.SetSampling(cfg.FrameCount, cfg.FrameInterval, cfg.ThumbnailOffset)

	return &Dependencies{
		Hasher:   hasher,
		Sampler:  sampler,
		Storage:  store,
		Registry: registry,
		Reports:  reports,
		Locator:  locator,
		Reporter: reporter,
	}, nil
}

// NewSampler builds the ffmpeg-backed frame sampler over temp.
func NewSampler(cfg *config.Config, temp media.TempStore, logger *slog.Logger) *media.Sampler {
	return media.NewSampler(
		media.NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFprobePath),
		temp,
		media.WithTimeout(cfg.SamplingTimeout),
		media.WithJPEGQuality(cfg.JPEGQuality),
		media.WithLogger(logger),
	)
}

// NewStandaloneSampler builds a frame sampler with local temp storage only,
// for commands that do not touch the report store.
func NewStandaloneSampler(cfg *config.Config, logger *slog.Logger) (*media.Sampler, error) {
	temp, err := storage.NewLocalStorage(cfg.TempDir, "")
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	return NewSampler(cfg, temp, logger), nil
}

// Close releases the report database.
func (d *Dependencies) Close() error {
	if d.Reports == nil {
		return nil
	}
	return d.Reports.Close()
}

// initStorage creates the appropriate storage backend based on configuration.
// Archived media goes to S3 when configured, otherwise under dataDir/media.
func initStorage(ctx context.Context, cfg *config.Config, dataDir string, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, filepath.Join(dataDir, "media"))
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
		slog.String("archive_dir", localStore.ArchiveDir()),
	)
	return localStore, nil
}

// NewLocator picks the device location stand-in: the per-invocation
// override, else the configured fallback, else none.
func NewLocator(cfg *config.Config, opts Options) (geo.Locator, error) {
	if opts.Location != nil {
		if err := opts.Location.Validate(); err != nil {
			return nil, err
		}
		return geo.StaticLocator{Position: opts.Location}, nil
	}
	pos, err := cfg.FallbackLocation()
	if err != nil {
		return nil, err
	}
	return geo.StaticLocator{Position: pos}, nil
}
