// Package tokencrypt encrypts OAuth tokens at rest.
//
// Ciphertext layout (before base64): salt(64) ‖ iv(16) ‖ AES-256-CBC(PKCS#7(plaintext)).
// The AES key is derived per ciphertext with PBKDF2-HMAC-SHA512 over the secret key and salt.
package tokencrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 64
	ivLength   = 16
	keyLength  = 32
	iterations = 100000

	minLength = saltLength + ivLength + 1
)

var (
	// ErrDecrypt is returned for every decryption failure. The cause is not exposed.
	ErrDecrypt = errors.New("failed to decrypt token data")

	// ErrMissingKey is returned when no secret key is configured.
	ErrMissingKey = errors.New("QUICKBOOKS_ENCRYPTION_KEY is required for token encryption")
)

// Encrypt encrypts plaintext with a key derived from secretKey. Two calls with the same
// input produce different output.
func Encrypt(plaintext, secretKey string) (string, error) {
	if secretKey == "" {
		return "", ErrMissingKey
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(secretKey, salt))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, saltLength+ivLength+len(padded))
	copy(out, salt)
	copy(out[saltLength:], iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[saltLength+ivLength:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. A wrong key, corrupted or truncated input all yield ErrDecrypt.
func Decrypt(encoded, secretKey string) (string, error) {
	if secretKey == "" {
		return "", ErrMissingKey
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) < minLength {
		return "", ErrDecrypt
	}

	salt := data[:saltLength]
	iv := data[saltLength : saltLength+ivLength]
	body := data[saltLength+ivLength:]
	if len(body)%aes.BlockSize != 0 {
		return "", ErrDecrypt
	}

	block, err := aes.NewCipher(deriveKey(secretKey, salt))
	if err != nil {
		return "", ErrDecrypt
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	unpadded, ok := unpad(plain, aes.BlockSize)
	if !ok {
		return "", ErrDecrypt
	}
	return string(unpadded), nil
}

// IsValidEncryptedData reports whether data is plausibly output of Encrypt.
// It does not check that the data decrypts.
func IsValidEncryptedData(data string) bool {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return false
	}
	return len(raw) >= minLength
}

func deriveKey(secretKey string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secretKey), salt, iterations, keyLength, sha512.New)
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

// Cipher binds a secret key so callers do not pass it around.
type Cipher struct {
	secretKey string
}

// NewCipher returns ErrMissingKey when secretKey is empty.
func NewCipher(secretKey string) (*Cipher, error) {
	if secretKey == "" {
		return nil, ErrMissingKey
	}
	return &Cipher{secretKey: secretKey}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, c.secretKey)
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	return Decrypt(encoded, c.secretKey)
}
