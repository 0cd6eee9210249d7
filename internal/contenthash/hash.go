// Package contenthash produces deterministic fingerprints of text, used
// as cache key components for embeddings and assembled context.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the SHA-256 hex digest of the normalized text. Input is
// lowercased with whitespace runs collapsed before hashing, so
// semantically equal text maps to the same cache key.
func Sum(text string) string {
	normalized := Normalize(text)
	digest := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(digest[:])
}

// Normalize lowercases the text and collapses all whitespace runs to a
// single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
