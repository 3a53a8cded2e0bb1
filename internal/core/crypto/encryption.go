// Package crypto provides encryption utilities for vault contents.
// This is part of the Functional Core - all functions are pure with no I/O.
//
// Vault entries are encrypted with AES-256-GCM under a key derived from the
// user's password with PBKDF2-HMAC-SHA256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when decryption fails due to invalid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// Key Derivation
// =============================================================================

// DefaultIterations is the PBKDF2 iteration count for new vaults.
const DefaultIterations = 480_000

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// SaltSize is the salt length in bytes for new vaults.
const SaltSize = 16

// DeriveKey derives a 32-byte AES-256 key from a password and salt using
// PBKDF2-HMAC-SHA256 with the given iteration count.
//
// Note: This function is deterministic - same inputs always produce the same key.
func DeriveKey(password string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}

// NewSalt generates a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM with the provided key.
// The key must be exactly 32 bytes (256 bits).
//
// The ciphertext format is: nonce (12 bytes) || encrypted data || auth tag (16 bytes)
//
// Returns encrypted bytes or error if encryption fails.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) < KeySize {
		return nil, ErrKeyTooShort
	}

	// Use exactly 32 bytes for AES-256
	key = key[:KeySize]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Generate random nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Encrypt and prepend nonce
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
// The key must be exactly 32 bytes (256 bits).
//
// Returns decrypted plaintext or error if decryption fails.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) < KeySize {
		return nil, ErrKeyTooShort
	}

	// Use exactly 32 bytes for AES-256
	key = key[:KeySize]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	// Extract nonce and ciphertext
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	// Decrypt and verify
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// =============================================================================
// Base64 Encoding Variants
// =============================================================================

// EncryptToBase64 encrypts plaintext and returns base64-encoded ciphertext.
// Useful for storing encrypted data in text fields (JSON, environment variables).
func EncryptToBase64(plaintext, key []byte) (string, error) {
	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptFromBase64 decrypts base64-encoded ciphertext.
func DecryptFromBase64(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return Decrypt(ciphertext, key)
}
