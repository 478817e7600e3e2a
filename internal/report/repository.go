package report

import (
	"context"
	"errors"
)

var (
	// ErrReportNotFound is returned when a report cannot be found by ID.
	ErrReportNotFound = errors.New("report not found")
	// ErrDuplicateHash is returned by Save when another report already holds
	// the same media hash.
	ErrDuplicateHash = errors.New("report with this media hash already exists")
)

// Repository defines the interface for report persistence.
// It doubles as the durable duplicate registry through ExistsByHash.
type Repository interface {
	// Save persists a report. If a report with the same ID exists it is
	// replaced. Returns ErrDuplicateHash if a different report holds the
	// same media hash.
	Save(ctx context.Context, r *Report) error

	// FindByID retrieves a report by its unique identifier.
	// Returns ErrReportNotFound if the report does not exist.
	FindByID(ctx context.Context, id string) (*Report, error)

	// ExistsByHash reports whether any report holds the media hash.
	ExistsByHash(ctx context.Context, hash string) (bool, error)

	// List returns all reports, newest first.
	List(ctx context.Context) ([]*Report, error)

	// ListByUser returns the reports of one submitter, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Report, error)

	// Delete removes a report from storage.
	// Returns ErrReportNotFound if the report does not exist.
	Delete(ctx context.Context, id string) error
}
