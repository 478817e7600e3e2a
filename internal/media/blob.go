// Package media holds the submitted media value types and the video frame
// sampler used to turn a clip into a handful of still images for analysis.
package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedMedia is returned for content that is neither an image nor a video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Kind classifies a blob.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Blob is submitted media. The bytes are never mutated after construction.
type Blob struct {
	Data     []byte
	Kind     Kind
	MIMEType string
	Name     string
}

// NewBlob sniffs data and returns a typed blob.
func NewBlob(name string, data []byte) (Blob, error) {
	kind, mime, err := DetectKind(data)
	if err != nil {
		if name != "" {
			return Blob{}, fmt.Errorf("%s: %w", name, err)
		}
		return Blob{}, err
	}
	return Blob{Data: data, Kind: kind, MIMEType: mime, Name: name}, nil
}

// DetectKind sniffs the content type from the leading bytes.
func DetectKind(data []byte) (Kind, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: empty content", ErrUnsupportedMedia)
	}
	m := mimetype.Detect(data)
	mime := m.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage, mime, nil
	case strings.HasPrefix(mime, "video/"):
		return KindVideo, mime, nil
	default:
		return "", mime, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime)
	}
}

// Extension returns the canonical file extension for the blob's content
// type, including the leading dot.
func (b Blob) Extension() string {
	if m := mimetype.Lookup(b.MIMEType); m != nil {
		return m.Extension()
	}
	return ""
}

// Frame is one still sampled from a video, JPEG encoded.
type Frame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Data      []byte  `json:"-"`
	MIMEType  string  `json:"mimeType"`
}
