package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media decoding.
var (
	// ErrInvalidDimensions is returned when a video reports no usable frame size.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidDuration is returned when duration is zero, negative or not finite.
	ErrInvalidDuration = errors.New("invalid duration: must be positive and finite")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when the container has no video stream.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrEmptyFrame is returned when ffmpeg produced no image for a seek.
	ErrEmptyFrame = errors.New("decoder produced no frame")
)

// FFmpegDecoder implements Decoder using the ffprobe and ffmpeg CLIs.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder. Empty paths default to
// "ffmpeg" and "ffprobe" found via PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the first video stream's size and the container duration.
// A missing or unparsable duration is reported as NaN so the caller can
// reject it.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (Probe, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Probe{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Probe{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(raw []byte) (Probe, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Probe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Probe{}, ErrNoVideoStream
	}

	duration := math.NaN()
	if s := strings.TrimSpace(out.Format.Duration); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			duration = v
		}
	}

	return Probe{
		Width:    out.Streams[0].Width,
		Height:   out.Streams[0].Height,
		Duration: duration,
	}, nil
}

// FrameAt seeks to t and decodes a single frame as a lossless PNG on stdout,
// which is then decoded into an in-memory raster.
func (d *FFmpegDecoder) FrameAt(ctx context.Context, path string, t float64) (image.Image, error) {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64), // Input seek
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	}

	out, err := d.runFFmpeg(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w at %.3fs", ErrEmptyFrame, t)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", t, err)
	}
	return img, nil
}

// runFFmpeg executes ffmpeg and returns stdout. On failure the error carries
// the stderr output.
func (d *FFmpegDecoder) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
