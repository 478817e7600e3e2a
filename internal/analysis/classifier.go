package analysis

import (
	"context"

	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

// Classifier turns media into a violation verdict.
type Classifier interface {
	// ClassifyImage analyzes a single encoded image.
	ClassifyImage(ctx context.Context, data []byte, mimeType string) (*Verdict, error)

	// ClassifyFrames analyzes an ordered list of frames sampled from one clip.
	ClassifyFrames(ctx context.Context, frames []media.Frame) (*Verdict, error)
}

// StationFinder looks up police stations near a coordinate, closest first.
type StationFinder interface {
	NearbyStations(ctx context.Context, at geo.Coordinate) ([]PoliceStation, error)
}
