package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrIntegrity is returned when ciphertext fails authentication or is
// malformed. Callers must treat the payload as unreadable; no partial
// plaintext is ever returned.
var ErrIntegrity = errors.New("pii: ciphertext integrity check failed")

// Encryptor provides AES-256-GCM field-level encryption and decryption for
// PII data. Each ciphertext is a fresh random 96-bit nonce followed by the
// sealed payload (which carries the 128-bit authentication tag), encoded as
// standard base64.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates a new Encryptor with the given 32-byte AES-256 key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("pii encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("pii encryptor: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pii encryptor: create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt encrypts the plaintext string and returns a base64-encoded
// ciphertext with the nonce prepended. A new nonce is drawn from
// crypto/rand on every call and is never reused under the same key.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("pii encrypt: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decodes the base64 ciphertext, extracts the prepended nonce, and
// decrypts. Any malformed, truncated, or tampered input fails with
// ErrIntegrity.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrIntegrity, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrIntegrity)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return string(plaintext), nil
}
