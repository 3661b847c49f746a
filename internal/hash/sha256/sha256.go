// Package sha256 fingerprints rendered pages so a document reached through
// several URLs is extracted once.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces content fingerprints.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes an HTML body with runs of whitespace collapsed, so
// re-rendered copies that differ only in formatting share a fingerprint.
func (h *Hasher) Fingerprint(html string) string {
	return h.Hash([]byte(strings.Join(strings.Fields(html), " ")))
}
