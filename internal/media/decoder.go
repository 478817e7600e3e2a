package media

import (
	"context"
	"image"
)

// Probe is container metadata for a video file.
type Probe struct {
	Width    int
	Height   int
	Duration float64 // seconds
}

// Decoder reads video files. Implementations must be safe to call
// sequentially on the same path; the sampler never overlaps calls.
type Decoder interface {
	// Probe reads dimensions and duration without decoding frames.
	Probe(ctx context.Context, path string) (Probe, error)

	// FrameAt decodes the frame shown at t seconds at native resolution.
	FrameAt(ctx context.Context, path string, t float64) (image.Image, error)
}
