package dedup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/storage"
)

// Compile-time check that FileRegistry implements Registry.
var _ Registry = (*FileRegistry)(nil)

// DefaultFileName is the registry file created inside the data directory.
const DefaultFileName = "fingerprints.json"

// FileRegistry persists fingerprints as a JSON document naming the digest
// algorithm and listing hex fingerprints. The whole file is rewritten on
// every Add and replaced atomically.
type FileRegistry struct {
	path      string
	algorithm fingerprint.Algorithm
	logger    *slog.Logger

	mu     sync.RWMutex
	order  []fingerprint.Fingerprint
	lookup map[fingerprint.Fingerprint]struct{}
}

type registryFile struct {
	Algorithm    fingerprint.Algorithm `json:"algorithm"`
	Fingerprints []string              `json:"fingerprints"`
}

// OpenFileRegistry loads the registry at path for digests made with
// algorithm. A missing file is an empty registry. An unreadable or corrupt
// file is logged and also treated as empty; the next Add overwrites it.
// A bare JSON array is read as SHA-256 fingerprints.
//
// A registry holding fingerprints of another algorithm is refused with
// fingerprint.ErrAlgorithmMismatch, since none of them could ever match.
func OpenFileRegistry(path string, algorithm fingerprint.Algorithm, logger *slog.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	algorithm, err := fingerprint.ParseAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	r := &FileRegistry{
		path:      path,
		algorithm: algorithm,
		logger:    logger,
		lookup:    make(map[fingerprint.Fingerprint]struct{}),
	}

	raw, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return r, nil
	case err != nil:
		logger.Warn("could not read fingerprint registry, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		return r, nil
	}

	stored, err := decodeRegistry(raw)
	if err != nil {
		logger.Warn("fingerprint registry is corrupt, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		return r, nil
	}
	for _, s := range stored.Fingerprints {
		fp, err := fingerprint.Parse(s)
		if err != nil {
			logger.Debug("skipping malformed registry entry", slog.String("entry", s))
			continue
		}
		if _, dup := r.lookup[fp]; dup {
			continue
		}
		r.lookup[fp] = struct{}{}
		r.order = append(r.order, fp)
	}

	if len(r.order) > 0 {
		if err := fingerprint.CheckAlgorithm(stored.Algorithm, algorithm); err != nil {
			return nil, fmt.Errorf("open fingerprint registry %s: %w", path, err)
		}
	}
	return r, nil
}

func decodeRegistry(raw []byte) (registryFile, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		out := registryFile{Algorithm: fingerprint.AlgorithmSHA256}
		err := json.Unmarshal(trimmed, &out.Fingerprints)
		return out, err
	}

	var out registryFile
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return registryFile{}, err
	}
	a, err := fingerprint.ParseAlgorithm(string(out.Algorithm))
	if err != nil {
		return registryFile{}, err
	}
	out.Algorithm = a
	return out, nil
}

// Path returns the backing file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Algorithm returns the digest algorithm of the stored fingerprints.
func (r *FileRegistry) Algorithm() fingerprint.Algorithm {
	return r.algorithm
}

func (r *FileRegistry) Contains(_ context.Context, fp fingerprint.Fingerprint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lookup[fp]
	return ok, nil
}

// Add records fp and rewrites the file. On write failure the in-memory set
// still holds fp so this process keeps rejecting it.
func (r *FileRegistry) Add(ctx context.Context, fp fingerprint.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup[fp]; ok {
		return nil
	}
	r.lookup[fp] = struct{}{}
	r.order = append(r.order, fp)

	if err := r.flush(); err != nil {
		return fmt.Errorf("persist fingerprint registry: %w", err)
	}
	return nil
}

// Fingerprints returns recorded fingerprints in insertion order.
func (r *FileRegistry) Fingerprints() []fingerprint.Fingerprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *FileRegistry) flush() error {
	out := registryFile{
		Algorithm:    r.algorithm,
		Fingerprints: make([]string, len(r.order)),
	}
	for i, fp := range r.order {
		out.Fingerprints[i] = fp.String()
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(r.path, bytes.NewReader(raw), 0600)
}
