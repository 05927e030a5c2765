// Package secrets encodes and decodes stored mailbox credentials.
//
// Credential columns have accumulated several encodings over the life of the
// product: empty markers, a hex envelope from a raw bytea export, the current
// AES-CBC format, bare base64, and plain text. Decode recognizes all of them
// through an ordered list of (match, decode) branches; Encode always writes
// the canonical encrypted format. The codec itself never logs values; use
// Fingerprint when a secret needs to appear in a log line.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrKeyUnavailable is returned when an operation requires the encryption
// key but no passphrase was configured.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// Config holds the codec's construction-time settings.
type Config struct {
	// Passphrase is the shared secret credentials are encrypted under. The
	// AES key is derived from it once at construction. Empty means no key:
	// Encode and encrypted-format Decode return ErrKeyUnavailable.
	Passphrase string
}

// Codec encodes and decodes stored credential values. A Codec is immutable
// and safe for concurrent use.
type Codec struct {
	key []byte // 32-byte AES-256 key, nil when no passphrase configured
}

// NewCodec derives the encryption key from the configured passphrase and
// returns a ready codec.
func NewCodec(cfg Config) *Codec {
	c := &Codec{}
	if cfg.Passphrase != "" {
		sum := sha256.Sum256([]byte(cfg.Passphrase))
		c.key = sum[:]
	}
	return c
}

// Decode materializes the plaintext for a stored credential value. ok is
// false when the value is absent: never stored, the empty marker, or an
// encoding too corrupt to recover. A wrong or missing decryption result is
// reported as absent rather than an error so a single bad row cannot take
// down a request; the only error returned is ErrKeyUnavailable.
func (c *Codec) Decode(stored string) (plaintext string, ok bool, err error) {
	for _, b := range decodeBranches {
		if b.match(stored) {
			return b.decode(c, stored)
		}
	}
	// the trailing plaintext branch matches everything
	return stored, true, nil
}

// Encode encrypts a plaintext credential into the canonical stored format:
// base64(iv) + ":" + base64(AES-256-CBC(pkcs7(plaintext))) with a fresh
// random IV per call. Decode(Encode(x)) == x for any x, including the empty
// string.
func (c *Codec) Encode(plaintext string) (string, error) {
	if len(c.key) == 0 {
		return "", ErrKeyUnavailable
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(iv) + separator + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// HasKey reports whether the codec was configured with a passphrase.
func (c *Codec) HasKey() bool {
	return len(c.key) > 0
}
