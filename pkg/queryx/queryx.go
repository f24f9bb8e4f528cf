// Package queryx provides query normalisation and fingerprinting shared
// by the cache and the router.
package queryx

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims surrounding whitespace and collapses internal runs of
// whitespace to a single space. Case is preserved; the analyser lowers
// case independently.
func Normalize(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// Fingerprint returns the hex SHA-256 digest of the normalised query.
// It is the cache and single-flight key.
func Fingerprint(q string) string {
	sum := sha256.Sum256([]byte(Normalize(q)))
	return hex.EncodeToString(sum[:])
}
