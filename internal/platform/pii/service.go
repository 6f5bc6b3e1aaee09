package pii

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EncryptionService provides reversible protection for PII fields at rest,
// irreversible pseudonymization, and non-cryptographic display masking.
//
// Exactly one symmetric key is held per process lifetime. In configured-key
// mode the key is supplied externally at startup; otherwise an ephemeral key
// is generated for development use. Ephemeral keys die with the process, so
// any ciphertext written under one becomes permanently undecryptable after a
// restart.
type EncryptionService struct {
	encryptor *Encryptor

	mu         sync.RWMutex
	pseudonyms map[string]string
}

// NewEncryptionService creates a new encryption service.
//
// If hexKey is empty, an ephemeral 32-byte key is generated and a loud
// warning is logged (development mode). If hexKey is non-empty, it must be a
// valid 64-character hex string encoding a 32-byte AES-256 key. A service
// without a usable key is never returned: key failures are errors so the
// process refuses to start.
func NewEncryptionService(hexKey string, logger zerolog.Logger) (*EncryptionService, error) {
	var keyBytes []byte

	if hexKey == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("generate ephemeral encryption key: %w", err)
		}
		logger.Warn().Msg("ENCRYPTION_KEY is not set; generated an ephemeral key for development")
		logger.Warn().Msg("ciphertext written under an ephemeral key will NOT survive a process restart")
	} else {
		var err error
		keyBytes, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
		logger.Info().Msg("PII field-level encryption enabled with configured key")
	}

	enc, err := NewEncryptor(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("create PII encryptor: %w", err)
	}

	return &EncryptionService{
		encryptor:  enc,
		pseudonyms: make(map[string]string),
	}, nil
}

// Encrypt encrypts a single PII field value. An empty input is a no-op that
// yields an empty blob, not an error.
func (s *EncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return s.encryptor.Encrypt(plaintext)
}

// Decrypt decrypts a single PII field value. An empty blob yields an empty
// string; a malformed or tampered blob fails with ErrIntegrity.
func (s *EncryptionService) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	return s.encryptor.Decrypt(blob)
}

// Pseudonym derives a short, irreversible identifier from sensitive data.
// The mapping is deterministic for the lifetime of the service instance:
// the same (prefix, data) pair always yields the same pseudonym. Results are
// cached to avoid recomputation; the cache is a performance optimization
// only, never a security boundary, and is not reversible.
func (s *EncryptionService) Pseudonym(data, prefix string) string {
	if data == "" {
		return ""
	}

	cacheKey := prefix + ":" + data

	s.mu.RLock()
	cached, ok := s.pseudonyms[cacheKey]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	hash := sha256.Sum256([]byte(data))
	short := base64.StdEncoding.EncodeToString(hash[:])[:8]
	short = stripNonAlphanumeric(short)
	pseudonym := prefix + "_" + short

	s.mu.Lock()
	s.pseudonyms[cacheKey] = pseudonym
	s.mu.Unlock()

	return pseudonym
}

// ClearPseudonymCache empties the pseudonym cache. This is an explicit
// administrative action; the cache is never cleared automatically because
// pseudonym identity must stay stable for the process lifetime.
func (s *EncryptionService) ClearPseudonymCache() {
	s.mu.Lock()
	s.pseudonyms = make(map[string]string)
	s.mu.Unlock()
}

const maskedNationalID = "XXX.XXX.XXX-XX"

// MaskNationalID reduces a national identifier to a display-safe form that
// keeps only the last two digits (e.g. "XXX.XXX.XXX-42"). Inputs that do not
// contain the expected eleven digits render as the fully masked placeholder.
// This is pure display masking, distinct from pseudonymization.
func (s *EncryptionService) MaskNationalID(raw string) string {
	digits := StripNonDigits(raw)
	if len(digits) != 11 {
		return maskedNationalID
	}
	return "XXX.XXX.XXX-" + digits[9:]
}

func stripNonAlphanumeric(in string) string {
	var b strings.Builder
	for _, r := range in {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripNonDigits removes every non-digit rune, normalizing formatted
// national identifiers ("123.456.789-01") to bare digits.
func StripNonDigits(in string) string {
	var b strings.Builder
	for _, r := range in {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
