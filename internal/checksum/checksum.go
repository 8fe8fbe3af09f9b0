// Package checksum fingerprints page content so unchanged files can be
// skipped by the index and reported by the API.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum for text already held as a string.
func SumString(s string) string {
	return Sum([]byte(s))
}
