// Package checksum fingerprints archive files for change detection.
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

// ETag returns Sum as a strong HTTP entity tag.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}
