// Package report provides the Report aggregate for submitted violation media,
// the repository port used as the durable duplicate registry, and the
// submission workflow that ties fingerprinting, location and analysis together.
package report

import (
	"time"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
	"github.com/trafficai/violation-reporter/internal/report/id"
)

// Report is one submitted piece of media and its analysis.
type Report struct {
	// ID is the unique report identifier (REP-...).
	ID string `json:"id"`
	// UserID and Username identify the submitter. Both are empty for
	// anonymous submissions.
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	// MediaType is image or video.
	MediaType media.Kind `json:"mediaType"`
	// MediaHash is the content fingerprint. Unique across all reports.
	MediaHash fingerprint.Fingerprint `json:"mediaHash"`
	// MediaName is the submitted file name.
	MediaName string `json:"mediaName,omitempty"`
	// MIMEType is the sniffed content type.
	MIMEType string `json:"mimeType"`
	// MediaURL is where the archived media lives. Empty when archiving failed.
	MediaURL string `json:"mediaUrl,omitempty"`
	// FrameCount is the number of frames analyzed for a video.
	FrameCount int `json:"frameCount,omitempty"`
	// Verdict is the model's classification.
	Verdict analysis.Verdict `json:"verdict"`
	// Location is nil when neither the media nor the device gave a fix.
	Location *geo.Coordinate `json:"location"`
	// CapturedAt is the EXIF capture time when present.
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
	// CreatedAt is when the report was created.
	CreatedAt time.Time `json:"createdAt"`
}

// New creates a Report with a generated ID for the given media.
func New(kind media.Kind, hash fingerprint.Fingerprint) *Report {
	return &Report{
		ID:        id.Generate(),
		MediaType: kind,
		MediaHash: hash,
		CreatedAt: time.Now().UTC(),
	}
}

// IsViolation reports whether the verdict found a real violation.
func (r *Report) IsViolation() bool {
	return r.Verdict.HasViolation()
}

// Clone creates a deep copy of the report for safe reads.
func (r *Report) Clone() *Report {
	c := *r
	if r.Verdict.Violations != nil {
		c.Verdict.Violations = make([]analysis.Violation, len(r.Verdict.Violations))
		copy(c.Verdict.Violations, r.Verdict.Violations)
	}
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.CapturedAt != nil {
		at := *r.CapturedAt
		c.CapturedAt = &at
	}
	return &c
}
