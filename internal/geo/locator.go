package geo

import (
	"context"
	"errors"
	"log/slog"
)

// ErrLocationUnavailable is returned by a Locator that cannot produce a fix.
var ErrLocationUnavailable = errors.New("location unavailable")

// Locator is a live position source, queried only when the media itself
// carries no usable location.
type Locator interface {
	Locate(ctx context.Context) (*Coordinate, error)
}

// MetadataSource extracts an embedded location from raw media bytes.
// It returns nil when the bytes carry none.
type MetadataSource func(data []byte) *Coordinate

// StaticLocator returns a fixed position. It stands in for the device query
// when the CLI is given --lat/--lng or FALLBACK_LATITUDE/FALLBACK_LONGITUDE.
// A nil Position means no fix is available.
type StaticLocator struct {
	Position *Coordinate
}

// Locate implements Locator.
func (l StaticLocator) Locate(ctx context.Context) (*Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Position == nil {
		return nil, ErrLocationUnavailable
	}
	p := *l.Position
	return &p, nil
}

// Resolve tries the embedded metadata first and falls back to the live
// locator. It never fails: when neither source succeeds the result is nil.
func Resolve(ctx context.Context, data []byte, meta MetadataSource, locator Locator, logger *slog.Logger) *Coordinate {
	if logger == nil {
		logger = slog.Default()
	}

	if meta != nil {
		if c := fromMetadata(data, meta, logger); c != nil {
			logger.Debug("location from media metadata", slog.String("coordinate", c.String()))
			return c
		}
	}

	if locator == nil {
		return nil
	}
	c, err := locator.Locate(ctx)
	if err != nil {
		logger.Warn("could not get current location", slog.String("error", err.Error()))
		return nil
	}
	if c == nil || c.Validate() != nil {
		return nil
	}
	logger.Debug("location from device", slog.String("coordinate", c.String()))
	return c
}

// fromMetadata shields Resolve from a misbehaving extractor.
func fromMetadata(data []byte, meta MetadataSource, logger *slog.Logger) (c *Coordinate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("metadata location extraction panicked", slog.Any("error", r))
			c = nil
		}
	}()
	c = meta(data)
	if c != nil && c.Validate() != nil {
		return nil
	}
	return c
}
