package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DeriveKey Tests
// =============================================================================

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := DeriveKey("my-secret-passphrase", salt, 1000)
	assert.Len(t, key, KeySize)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key1 := DeriveKey("same-passphrase", salt, 1000)
	key2 := DeriveKey("same-passphrase", salt, 1000)
	assert.Equal(t, key1, key2)
}

func TestDeriveKey_SaltChangesKey(t *testing.T) {
	key1 := DeriveKey("same-passphrase", []byte("salt-one-016bytes"), 1000)
	key2 := DeriveKey("same-passphrase", []byte("salt-two-016bytes"), 1000)
	assert.NotEqual(t, key1, key2)
}

func TestNewSalt(t *testing.T) {
	salt1, err := NewSalt()
	require.NoError(t, err)
	assert.Len(t, salt1, SaltSize)

	salt2, err := NewSalt()
	require.NoError(t, err)
	assert.False(t, bytes.Equal(salt1, salt2))
}

// =============================================================================
// Encrypt / Decrypt Tests
// =============================================================================

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)
	plaintext := []byte("some secret video metadata")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_KeyTooShort(t *testing.T) {
	_, err := Encrypt([]byte("data"), []byte("short-key"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestEncrypt_NonceVaries(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)

	c1, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	c2, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)

	// Fresh nonce per call means ciphertexts differ.
	assert.False(t, bytes.Equal(c1, c2))
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := DeriveKey("right-password", []byte("0123456789abcdef"), 1000)
	wrong := DeriveKey("wrong-password", []byte("0123456789abcdef"), 1000)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, wrong)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_Corrupted(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_TooShort(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)
	_, err := Decrypt([]byte{0x01, 0x02}, key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

// =============================================================================
// Base64 Variant Tests
// =============================================================================

func TestEncryptToBase64_Roundtrip(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)

	encoded, err := EncryptToBase64([]byte("payload"), key)
	require.NoError(t, err)

	decrypted, err := DecryptFromBase64(encoded, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)
}

func TestDecryptFromBase64_BadEncoding(t *testing.T) {
	key := DeriveKey("test-password", []byte("0123456789abcdef"), 1000)
	_, err := DecryptFromBase64("not!!base64", key)
	assert.Error(t, err)
}
