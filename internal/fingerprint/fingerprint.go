// Package fingerprint computes content digests of raw media bytes. The
// digest is the duplicate-detection key shared by the ephemeral and durable
// report registries, so it depends on the bytes only: never on file name,
// MIME type or metadata.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported 256-bit digest.
type Algorithm string

const (
	// AlgorithmSHA256 is the default and matches previously stored fingerprints.
	AlgorithmSHA256 Algorithm = "sha256"
	// AlgorithmBLAKE3 is a faster alternative for installations starting fresh.
	AlgorithmBLAKE3 Algorithm = "blake3"
)

// Size is the length of a rendered fingerprint in hex characters.
const Size = 64

// Static errors for fingerprinting.
var (
	// ErrDigest is returned when the media bytes could not be read or digested.
	ErrDigest = errors.New("fingerprint: digest failed")
	// ErrUnknownAlgorithm is returned for an unsupported algorithm name.
	ErrUnknownAlgorithm = errors.New("fingerprint: unknown algorithm")
	// ErrMalformed is returned by Parse for strings that are not 64 lowercase hex chars.
	ErrMalformed = errors.New("fingerprint: malformed")
	// ErrAlgorithmMismatch is returned when a store holds digests made with a
	// different algorithm than the one configured.
	ErrAlgorithmMismatch = errors.New("fingerprint: algorithm mismatch")
)

// Fingerprint is a 256-bit digest rendered as 64 lowercase hex characters.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short returns the leading 12 characters for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Parse validates s as a fingerprint. Upper-case hex is normalised.
func Parse(s string) (Fingerprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != Size {
		return "", fmt.Errorf("%w: length %d", ErrMalformed, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Fingerprint(s), nil
}

// Hasher produces fingerprints with a fixed algorithm.
type Hasher struct {
	algorithm Algorithm
	newHash   func() hash.Hash
}

// ParseAlgorithm normalises an algorithm name. An empty name selects SHA-256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBLAKE3:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// CheckAlgorithm reports ErrAlgorithmMismatch when stored differs from want.
func CheckAlgorithm(stored, want Algorithm) error {
	if stored != want {
		return fmt.Errorf("%w: store uses %s, configured %s", ErrAlgorithmMismatch, stored, want)
	}
	return nil
}

// NewHasher returns a Hasher for the named algorithm. An empty name selects SHA-256.
func NewHasher(algorithm Algorithm) (*Hasher, error) {
	a, err := ParseAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}
	if a == AlgorithmBLAKE3 {
		return &Hasher{algorithm: a, newHash: func() hash.Hash { return blake3.New() }}, nil
	}
	return &Hasher{algorithm: a, newHash: sha256.New}, nil
}

// Algorithm returns the digest this Hasher uses.
func (h *Hasher) Algorithm() Algorithm { return h.algorithm }

// Sum fingerprints an in-memory byte slice.
func (h *Hasher) Sum(data []byte) (Fingerprint, error) {
	d := h.newHash()
	if _, err := d.Write(data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDigest, err)
	}
	return Fingerprint(hex.EncodeToString(d.Sum(nil))), nil
}

// SumReader fingerprints a stream. A read error is a digest failure; the
// caller must abort rather than treat the media as unique.
func (h *Hasher) SumReader(r io.Reader) (Fingerprint, error) {
	d := h.newHash()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDigest, err)
	}
	return Fingerprint(hex.EncodeToString(d.Sum(nil))), nil
}
