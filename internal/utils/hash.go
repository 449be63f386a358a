package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns the SHA256 hex digest of parts joined by NUL. Used to
// derive stable identifiers such as ETags for generated assets.
func ContentHash(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
