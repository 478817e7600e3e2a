package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trafficai/violation-reporter/internal/fingerprint"
)

// Guard applies the duplicate policy over both registries.
type Guard struct {
	ephemeral Registry
	durable   HashLookup
	logger    *slog.Logger
}

// NewGuard creates a Guard. durable may be nil, in which case only the
// ephemeral registry is consulted.
func NewGuard(ephemeral Registry, durable HashLookup, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{ephemeral: ephemeral, durable: durable, logger: logger}
}

// Check returns ErrDuplicate when fp is present in either registry. A lookup
// failure is returned as an error rather than being read as "not seen".
func (g *Guard) Check(ctx context.Context, fp fingerprint.Fingerprint) error {
	seen, err := g.ephemeral.Contains(ctx, fp)
	if err != nil {
		return fmt.Errorf("check local registry: %w", err)
	}
	if seen {
		g.logger.Info("duplicate rejected by local registry", slog.String("fingerprint", fp.Short()))
		return fmt.Errorf("%w: %s", ErrDuplicate, fp.Short())
	}

	if g.durable == nil {
		return nil
	}
	seen, err = g.durable.ExistsByHash(ctx, fp.String())
	if err != nil {
		return fmt.Errorf("check report store: %w", err)
	}
	if seen {
		g.logger.Info("duplicate rejected by report store", slog.String("fingerprint", fp.Short()))
		return fmt.Errorf("%w: %s", ErrDuplicate, fp.Short())
	}
	return nil
}

// Record adds fp to the ephemeral registry. Callers must do this before
// attempting durable persistence.
func (g *Guard) Record(ctx context.Context, fp fingerprint.Fingerprint) error {
	if err := g.ephemeral.Add(ctx, fp); err != nil {
		return fmt.Errorf("record fingerprint: %w", err)
	}
	return nil
}
