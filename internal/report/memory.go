package report

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewMemoryRepository creates a new in-memory report repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reports: make(map[string]*Report),
	}
}

// Save persists a clone of the report.
func (r *MemoryRepository) Save(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reports {
		if existing.ID != rep.ID && existing.MediaHash == rep.MediaHash {
			return ErrDuplicateHash
		}
	}
	r.reports[rep.ID] = rep.Clone()
	return nil
}

// FindByID retrieves a report by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return rep.Clone(), nil
}

// ExistsByHash reports whether any stored report holds hash.
func (r *MemoryRepository) ExistsByHash(_ context.Context, hash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rep := range r.reports {
		if rep.MediaHash.String() == hash {
			return true, nil
		}
	}
	return false, nil
}

// List returns clones of all reports, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Report, error) {
	return r.collect(func(*Report) bool { return true }), nil
}

// ListByUser returns clones of the user's reports, newest first.
func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]*Report, error) {
	return r.collect(func(rep *Report) bool { return rep.UserID == userID }), nil
}

// Delete removes a report by ID.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[id]; !ok {
		return ErrReportNotFound
	}
	delete(r.reports, id)
	return nil
}

func (r *MemoryRepository) collect(keep func(*Report) bool) []*Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Report, 0, len(r.reports))
	for _, rep := range r.reports {
		if keep(rep) {
			out = append(out, rep.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

// sortNewestFirst orders by creation time descending, ties broken by ID.
func sortNewestFirst(reports []*Report) {
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID > reports[j].ID
	})
}
