package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a short stable key from parts, used to namespace
// shared cache entries per database file.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}
