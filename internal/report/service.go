package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/dedup"
	"github.com/trafficai/violation-reporter/internal/exifgps"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

// ErrClassifierUnavailable is returned by Submit when no classifier is configured.
var ErrClassifierUnavailable = errors.New("no violation classifier configured")

// FrameSampler turns a video blob into stills.
type FrameSampler interface {
	SampleFrames(ctx context.Context, blob media.Blob, frameCount int, interval float64) ([]media.Frame, error)
	Thumbnail(ctx context.Context, blob media.Blob, offset float64) (media.Frame, error)
}

// Archiver keeps a copy of submitted media and returns where it lives.
type Archiver interface {
	Archive(ctx context.Context, key, contentType string, data io.Reader) (location string, err error)
}

// SubmitInput is one submission.
type SubmitInput struct {
	// Data is the raw media.
	Data []byte
	// Name is the submitted file name.
	Name string
	// UserID and Username identify the submitter; empty for anonymous.
	UserID   string
	Username string
}

// SubmitOutput is the result of a successful submission.
type SubmitOutput struct {
	// Report is the persisted report.
	Report *Report
	// Thumbnail is the preview frame of a video, nil for images or when the
	// preview could not be produced.
	Thumbnail *media.Frame
	// Stations are the police stations near a located violation.
	Stations []analysis.PoliceStation
}

// SubmitDeps are the collaborators of SubmitService. Classifier, Stations,
// Locator and Archive are optional; without a Classifier, Submit fails but
// the read and delete operations still work.
type SubmitDeps struct {
	Hasher     *fingerprint.Hasher
	Guard      *dedup.Guard
	Sampler    FrameSampler
	Classifier analysis.Classifier
	Stations   analysis.StationFinder
	Locator    geo.Locator
	Archive    Archiver
	Repo       Repository
	// Metadata extracts a location from the media bytes. Defaults to the
	// EXIF GPS reader.
	Metadata geo.MetadataSource
	Logger   *slog.Logger
}

// SubmitService runs the submission workflow: fingerprint, duplicate check,
// analysis, location, then persistence.
type SubmitService struct {
	deps SubmitDeps

	frameCount      int
	frameInterval   float64
	thumbnailOffset float64
}

// NewSubmitService creates a SubmitService with the default sampling plan.
func NewSubmitService(deps SubmitDeps) *SubmitService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metadata == nil {
		deps.Metadata = exifgps.ExtractLocation
	}
	return &SubmitService{
		deps:            deps,
		frameCount:      media.DefaultFrameCount,
		frameInterval:   media.DefaultFrameInterval,
		thumbnailOffset: media.DefaultThumbnailOffset,
	}
}

// SetSampling configures how videos are sampled. Non-positive values keep
// the current setting.
func (s *SubmitService) SetSampling(frameCount int, interval, thumbnailOffset float64) {
	if frameCount > 0 {
		s.frameCount = frameCount
	}
	if interval > 0 {
		s.frameInterval = interval
	}
	if thumbnailOffset > 0 {
		s.thumbnailOffset = thumbnailOffset
	}
}

// Submit analyzes and records one piece of media. It returns
// media.ErrUnsupportedMedia for content that is neither image nor video and
// dedup.ErrDuplicate when the media was submitted before.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	logger := s.deps.Logger
	if s.deps.Classifier == nil {
		return nil, ErrClassifierUnavailable
	}

	blob, err := media.NewBlob(in.Name, in.Data)
	if err != nil {
		return nil, err
	}

	fp, err := s.deps.Hasher.Sum(blob.Data)
	if err != nil {
		return nil, err
	}
	logger = logger.With(slog.String("fingerprint", fp.Short()), slog.String("media_type", string(blob.Kind)))

	if err := s.deps.Guard.Check(ctx, fp); err != nil {
		return nil, err
	}

	location := geo.Resolve(ctx, blob.Data, s.deps.Metadata, s.deps.Locator, logger)
	var capturedAt *time.Time
	if blob.Kind == media.KindImage {
		if at, ok := exifgps.CaptureTime(blob.Data); ok {
			at = at.UTC()
			capturedAt = &at
		}
	}

	out := &SubmitOutput{}
	var verdict *analysis.Verdict
	frameCount := 0
	switch blob.Kind {
	case media.KindVideo:
		if thumb, err := s.deps.Sampler.Thumbnail(ctx, blob, s.thumbnailOffset); err != nil {
			logger.Warn("could not create video preview", slog.String("error", err.Error()))
		} else {
			out.Thumbnail = &thumb
		}

		frames, err := s.deps.Sampler.SampleFrames(ctx, blob, s.frameCount, s.frameInterval)
		if err != nil {
			return nil, fmt.Errorf("extract video frames: %w", err)
		}
		if len(frames) == 0 {
			return nil, media.ErrNoFrames
		}
		frameCount = len(frames)
		logger.Info("analyzing video", slog.Int("frames", frameCount))
		verdict, err = s.deps.Classifier.ClassifyFrames(ctx, frames)
		if err != nil {
			return nil, fmt.Errorf("analyze video: %w", err)
		}
	default:
		logger.Info("analyzing image")
		verdict, err = s.deps.Classifier.ClassifyImage(ctx, blob.Data, blob.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("analyze image: %w", err)
		}
	}

	if verdict == nil {
		return nil, fmt.Errorf("analyze %s: %w", blob.Kind, analysis.ErrInvalidVerdict)
	}

	rep := New(blob.Kind, fp)
	rep.UserID = in.UserID
	rep.Username = in.Username
	rep.MediaName = blob.Name
	rep.MIMEType = blob.MIMEType
	rep.FrameCount = frameCount
	rep.Verdict = *verdict
	rep.Location = location
	rep.CapturedAt = capturedAt
	logger = logger.With(slog.String("report_id", rep.ID))

	// The local record goes first so a failed save still blocks resubmission.
	if err := s.deps.Guard.Record(ctx, fp); err != nil {
		return nil, err
	}

	if s.deps.Archive != nil {
		key := fp.String() + blob.Extension()
		url, err := s.deps.Archive.Archive(ctx, key, blob.MIMEType, bytes.NewReader(blob.Data))
		if err != nil {
			logger.Warn("could not archive media", slog.String("error", err.Error()))
		} else {
			rep.MediaURL = url
		}
	}

	if err := s.deps.Repo.Save(ctx, rep); err != nil {
		logger.Error("failed to save report", slog.String("error", err.Error()))
		return nil, fmt.Errorf("save report: %w", err)
	}
	out.Report = rep.Clone()

	logger.Info("report saved",
		slog.Bool("violation", rep.IsViolation()),
		slog.Bool("located", rep.Location != nil),
	)

	if rep.IsViolation() && rep.Location != nil && s.deps.Stations != nil {
		stations, err := s.deps.Stations.NearbyStations(ctx, *rep.Location)
		if err != nil {
			logger.Warn("could not find police stations, report was saved", slog.String("error", err.Error()))
		} else {
			out.Stations = stations
		}
	}

	return out, nil
}

// Get retrieves a report by ID.
func (s *SubmitService) Get(ctx context.Context, id string) (*Report, error) {
	return s.deps.Repo.FindByID(ctx, id)
}

// List returns the reports of userID newest first, or every report when
// userID is empty.
func (s *SubmitService) List(ctx context.Context, userID string) ([]*Report, error) {
	if userID == "" {
		return s.deps.Repo.List(ctx)
	}
	return s.deps.Repo.ListByUser(ctx, userID)
}

// Delete removes a report. The media fingerprint stays in the local
// registry, so the same media still cannot be submitted again.
func (s *SubmitService) Delete(ctx context.Context, id string) error {
	if err := s.deps.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.deps.Logger.Info("report deleted", slog.String("report_id", id))
	return nil
}
