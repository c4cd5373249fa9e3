// Package secchan implements the one-directional confidentiality layer of
// the game protocol. Clients encrypt every command with the server's public
// key; server replies travel in the clear.
package secchan

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// EncryptedTag marks a frame payload whose remainder is ciphertext.
const EncryptedTag = "encrypted:"

var (
	ErrMessageTooLong = errors.New("message too long for rsa-oaep")
	ErrNotEncrypted   = errors.New("payload is not encrypted")
)

// MaxPlaintextSize is the largest message a single OAEP block can carry
// for the given key.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// Encrypt applies RSA-OAEP (SHA-256 for both the hash and MGF1, empty
// label) and base64 encodes the result.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if limit := MaxPlaintextSize(pub); len(plaintext) > limit {
		return nil, fmt.Errorf("%w (got %d; want <= %d)", ErrMessageTooLong, len(plaintext), limit)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt: %w", err)
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(encoded, ciphertext)
	return encoded, nil
}

func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(raw, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("could not decode base64: %w", err)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw[:n], nil)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt: %w", err)
	}
	return plaintext, nil
}

// Seal is Encrypt with EncryptedTag prepended.
func Seal(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := Encrypt(pub, plaintext)
	if err != nil {
		return nil, err
	}
	return append([]byte(EncryptedTag), ciphertext...), nil
}

// IsSealed reports whether payload carries EncryptedTag.
func IsSealed(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte(EncryptedTag))
}

// Open decrypts a tagged payload and returns an untagged one unchanged.
func Open(priv *rsa.PrivateKey, payload []byte) ([]byte, error) {
	if !IsSealed(payload) {
		return payload, nil
	}
	return Decrypt(priv, payload[len(EncryptedTag):])
}

// OpenCiphertext is what the server runs on command frames: they are always
// encrypted, and the tag is optional.
func OpenCiphertext(priv *rsa.PrivateKey, payload []byte) ([]byte, error) {
	payload = bytes.TrimPrefix(payload, []byte(EncryptedTag))
	if len(payload) == 0 {
		return nil, ErrNotEncrypted
	}
	return Decrypt(priv, payload)
}
