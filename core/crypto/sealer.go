// Package crypto seals session strings before they reach the store.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrMalformed is returned by Decrypt for input that was not produced by Encrypt
// with the same key.
var ErrMalformed = errors.New("crypto: malformed ciphertext")

const keyInfo = "sessionkeeper/session-string/v1"

// Sealer encrypts and decrypts strings with XChaCha20-Poly1305.
type Sealer struct {
	key []byte
}

// NewSealer derives the AEAD key from the configured master secret.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("crypto: secret must be at least 16 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (s *Sealer) Decrypt(blob string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformed
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}
