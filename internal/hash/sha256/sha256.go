// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// PictureHashLength is the digest length used to key stored pictures.
const PictureHashLength = 15

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct {
	length int
}

// New returns a SHA-256 hasher producing the full hex digest.
func New() *Hasher {
	return &Hasher{}
}

// NewTruncated returns a hasher that keeps the first length hex characters.
// A length outside (0, 64) keeps the whole digest.
func NewTruncated(length int) *Hasher {
	return &Hasher{length: length}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length > 0 && h.length < len(digest) {
		return digest[:h.length], nil
	}
	return digest, nil
}
