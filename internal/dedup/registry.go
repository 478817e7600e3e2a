// Package dedup decides whether submitted media has been seen before. It
// consults a fast ephemeral registry local to this installation and the
// durable report store; a match in either one marks a duplicate.
package dedup

import (
	"context"
	"errors"

	"github.com/trafficai/violation-reporter/internal/fingerprint"
)

// ErrDuplicate is returned when media with the same fingerprint was already submitted.
var ErrDuplicate = errors.New("duplicate submission")

// Registry is a set of fingerprints.
type Registry interface {
	// Contains reports whether fp has been recorded.
	Contains(ctx context.Context, fp fingerprint.Fingerprint) (bool, error)

	// Add records fp. Adding an existing fingerprint is a no-op.
	Add(ctx context.Context, fp fingerprint.Fingerprint) error
}

// HashLookup is the read side of the durable report store.
type HashLookup interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}
