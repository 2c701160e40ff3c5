// Package sha256 provides the SHA-256 digest adapter behind the agency
// checksum computation.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements ecfr.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. Identical input always yields an
// identical digest, which is what makes agency checksums comparable across
// ingestion runs.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
