package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Sampler errors.
var (
	// ErrNoFrames is returned when a run finished without capturing any frame.
	ErrNoFrames = errors.New("no frames extracted")
	// ErrSamplingTimeout is returned when the time limit elapsed before the
	// first frame was captured.
	ErrSamplingTimeout = errors.New("frame sampling timed out")
	// ErrNotVideo is returned when a non-video blob is passed to the sampler.
	ErrNotVideo = errors.New("media is not a video")
	// ErrInvalidTransition is returned when the sampler state machine is
	// driven out of order.
	ErrInvalidTransition = errors.New("invalid sampler state transition")
)

const (
	DefaultFrameCount      = 5
	DefaultFrameInterval   = 1.0
	DefaultThumbnailOffset = 0.5
	DefaultTimeout         = 30 * time.Second
	DefaultJPEGQuality     = 80

	frameMIMEType = "image/jpeg"
)

// TempStore provides the transient file handle a decoder reads from.
type TempStore interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (string, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// samplerState tracks one sampling session.
type samplerState int

const (
	stateIdle samplerState = iota
	stateSeeking
	stateDecoding
	stateDone
	stateError
)

func (s samplerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSeeking:
		return "seeking"
	case stateDecoding:
		return "decoding"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	default:
		return fmt.Sprintf("samplerState(%d)", int(s))
	}
}

var transitions = map[samplerState][]samplerState{
	stateIdle:     {stateSeeking, stateDone, stateError},
	stateSeeking:  {stateDecoding, stateError},
	stateDecoding: {stateSeeking, stateDone, stateError},
}

type session struct {
	state samplerState
}

func (s *session) to(next samplerState) error {
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
}

// Sampler extracts still frames from video blobs. Calls on one Sampler are
// serialized; each call opens its own transient handle and releases it on
// every exit path.
type Sampler struct {
	decoder Decoder
	temp    TempStore
	timeout time.Duration
	quality int
	logger  *slog.Logger

	mu sync.Mutex
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithTimeout sets the wall-clock limit for a sampling run.
func WithTimeout(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		s.timeout = d
	}
}

// WithJPEGQuality sets the encoder quality (1-100).
func WithJPEGQuality(q int) SamplerOption {
	return func(s *Sampler) {
		s.quality = q
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = l
	}
}

// NewSampler creates a Sampler.
func NewSampler(decoder Decoder, temp TempStore, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		decoder: decoder,
		temp:    temp,
		timeout: DefaultTimeout,
		quality: DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.quality < 1 || s.quality > 100 {
		s.quality = DefaultJPEGQuality
	}
	return s
}

// SampleFrames captures up to frameCount frames spaced by interval seconds.
//
// Videos without dimensions or with a zero, negative or non-finite duration
// are rejected immediately. Seeks happen one at a time in increasing order.
// When the time limit expires with at least one frame captured, the frames so
// far are returned without error; with none, ErrSamplingTimeout.
func (s *Sampler) SampleFrames(ctx context.Context, blob Blob, frameCount int, interval float64) ([]Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames []Frame
	err := s.withHandle(ctx, blob, func(runCtx context.Context, path string, probe Probe) error {
		plan, err := NewPlan(frameCount, interval, probe.Duration)
		if err != nil {
			return err
		}

		sess := &session{}
		for i := 0; ; i++ {
			t, ok := plan.At(i)
			if !ok {
				break
			}
			if err := runCtx.Err(); err != nil {
				_ = sess.to(stateError)
				return err
			}
			if err := sess.to(stateSeeking); err != nil {
				return err
			}
			target := plan.SeekTarget(t)

			img, err := s.decoder.FrameAt(runCtx, path, target)
			if err != nil {
				_ = sess.to(stateError)
				return fmt.Errorf("decode frame %d at %.3fs: %w", len(frames), target, err)
			}
			if err := sess.to(stateDecoding); err != nil {
				return err
			}

			data, err := s.encode(img)
			if err != nil {
				_ = sess.to(stateError)
				return err
			}
			frames = append(frames, Frame{
				Index:     len(frames),
				Timestamp: target,
				Data:      data,
				MIMEType:  frameMIMEType,
			})
		}
		return sess.to(stateDone)
	})

	if err != nil {
		if errors.Is(err, ErrSamplingTimeout) && len(frames) > 0 {
			s.logger.Warn("frame sampling timed out, returning partial result",
				slog.String("name", blob.Name),
				slog.Int("frames", len(frames)),
			)
			return frames, nil
		}
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	s.logger.Debug("sampled frames",
		slog.String("name", blob.Name),
		slog.Int("frames", len(frames)),
	)
	return frames, nil
}

// Thumbnail captures a single frame at min(offset, duration*0.1).
func (s *Sampler) Thumbnail(ctx context.Context, blob Blob, offset float64) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frame Frame
	err := s.withHandle(ctx, blob, func(runCtx context.Context, path string, probe Probe) error {
		if err := validDuration(probe.Duration); err != nil {
			return err
		}
		target := math.Max(0, math.Min(offset, probe.Duration*0.1))
		if math.IsNaN(target) {
			target = 0
		}

		img, err := s.decoder.FrameAt(runCtx, path, target)
		if err != nil {
			return fmt.Errorf("decode thumbnail at %.3fs: %w", target, err)
		}
		data, err := s.encode(img)
		if err != nil {
			return err
		}
		frame = Frame{Timestamp: target, Data: data, MIMEType: frameMIMEType}
		return nil
	})
	if err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// Duration probes the video's duration in seconds without decoding frames.
func (s *Sampler) Duration(ctx context.Context, blob Blob) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var duration float64
	err := s.withHandle(ctx, blob, func(_ context.Context, _ string, probe Probe) error {
		if err := validDuration(probe.Duration); err != nil {
			return err
		}
		duration = probe.Duration
		return nil
	})
	return duration, err
}

// withHandle writes the blob to a temp file, probes it and runs fn under the
// sampling time limit. The temp file is removed before returning.
func (s *Sampler) withHandle(ctx context.Context, blob Blob, fn func(ctx context.Context, path string, probe Probe) error) error {
	if blob.Kind != KindVideo {
		return fmt.Errorf("%w: %s", ErrNotVideo, blob.MIMEType)
	}

	name := blob.Name
	if name == "" {
		name = "video"
	}
	path, err := s.temp.SaveTemp(ctx, name, bytes.NewReader(blob.Data))
	if err != nil {
		return fmt.Errorf("save temp video: %w", err)
	}
	defer func() {
		// Cleanup must run even when ctx is already done.
		if err := s.temp.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
			s.logger.Warn("failed to remove temp video", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.run(runCtx, path, fn)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrSamplingTimeout, s.timeout, err)
	}
	return err
}

func (s *Sampler) run(ctx context.Context, path string, fn func(ctx context.Context, path string, probe Probe) error) error {
	probe, err := s.decoder.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, probe.Width, probe.Height)
	}
	return fn(ctx, path, probe)
}

func (s *Sampler) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
