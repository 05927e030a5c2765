package secrets

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// Fingerprint returns a short log-safe reference for a stored credential
// value (Base58-encoded truncated SHA256). Two log lines with the same
// fingerprint refer to the same stored value; the value itself is never
// recoverable from it.
func Fingerprint(stored string) string {
	sum := sha256.Sum256([]byte(stored))
	return base58.Encode(sum[:8])
}
