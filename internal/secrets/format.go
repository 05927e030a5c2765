package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Format identifies which stored encoding a credential value carries. The
// values double as metric and audit labels.
type Format string

const (
	FormatEmpty       Format = "empty"        // Empty string or the \x empty marker
	FormatHexEnvelope Format = "hex_envelope" // \x-prefixed hex from a raw bytea export
	FormatEncrypted   Format = "encrypted"    // Canonical base64(iv):base64(ciphertext)
	FormatBase64      Format = "base64"       // Bare base64 plaintext
	FormatPlaintext   Format = "plaintext"    // Legacy unencoded value, stored as-is
)

const (
	// emptyMarker is how a raw bytea export renders an empty value. A bare
	// marker means the credential was never stored.
	emptyMarker = `\x`
	// hexPrefix introduces the legacy hex envelope; the marker and the
	// prefix share the same two characters, so the empty branch must run
	// first.
	hexPrefix = `\x`
	// separator splits the canonical format into IV and ciphertext halves.
	separator = ":"
)

// branch pairs a format predicate with its decoder. Decoding dispatch walks
// the table in order and the first matching branch claims the value; a
// branch whose decode fails reports absent, it never falls through to a
// later branch.
type branch struct {
	format Format
	match  func(stored string) bool
	decode func(c *Codec, stored string) (string, bool, error)
}

var decodeBranches = []branch{
	{FormatEmpty, matchEmpty, (*Codec).decodeEmpty},
	{FormatHexEnvelope, matchHexEnvelope, (*Codec).decodeHexEnvelope},
	{FormatEncrypted, matchEncrypted, (*Codec).decodeEncrypted},
	{FormatBase64, matchBase64, (*Codec).decodeBase64},
	{FormatPlaintext, matchAnything, (*Codec).decodePlaintext},
}

// Classify reports which branch would claim a stored value. The audit
// command uses it to count rows per format without needing the key.
func Classify(stored string) Format {
	for _, b := range decodeBranches {
		if b.match(stored) {
			return b.format
		}
	}
	return FormatPlaintext
}

func matchEmpty(stored string) bool {
	return stored == "" || stored == emptyMarker
}

func matchHexEnvelope(stored string) bool {
	return strings.HasPrefix(stored, hexPrefix)
}

func matchEncrypted(stored string) bool {
	return strings.Count(stored, separator) == 1
}

func matchBase64(stored string) bool {
	_, ok := tryBase64(stored)
	return ok
}

func matchAnything(string) bool {
	return true
}

func (c *Codec) decodeEmpty(string) (string, bool, error) {
	return "", false, nil
}

// decodeHexEnvelope unwraps the \x hex envelope. Historically the wrapped
// bytes are usually a base64 string, so a successful inner base64 decode
// wins; otherwise the bytes are the plaintext. Corrupt hex is absent.
func (c *Codec) decodeHexEnvelope(stored string) (string, bool, error) {
	raw, err := hex.DecodeString(stored[len(hexPrefix):])
	if err != nil {
		return "", false, nil
	}
	if inner, ok := tryBase64(string(raw)); ok {
		return inner, true, nil
	}
	return string(raw), true, nil
}

// decodeEncrypted reverses Encode. Every malformed or undecryptable input
// reports absent; a value encrypted under a different passphrase must never
// crash the caller.
func (c *Codec) decodeEncrypted(stored string) (string, bool, error) {
	if len(c.key) == 0 {
		return "", false, ErrKeyUnavailable
	}
	ivPart, ctPart, _ := strings.Cut(stored, separator)
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return "", false, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return "", false, nil
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", false, nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", false, nil
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	unpadded, ok := pkcs7Unpad(plain, aes.BlockSize)
	if !ok {
		return "", false, nil
	}
	return string(unpadded), true, nil
}

func (c *Codec) decodeBase64(stored string) (string, bool, error) {
	decoded, ok := tryBase64(stored)
	if !ok {
		// match already validated the value, but keep the decoder safe on
		// its own
		return "", false, nil
	}
	return decoded, true, nil
}

// decodePlaintext returns the stored value unchanged. This permissive
// fallback keeps rows written before any encoding existed readable; the
// admin audit command counts how many remain.
func (c *Codec) decodePlaintext(stored string) (string, bool, error) {
	return stored, true, nil
}

// tryBase64 decodes s as strict standard base64. Empty strings and lengths
// not divisible by 4 are rejected outright.
func tryBase64(s string) (string, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
