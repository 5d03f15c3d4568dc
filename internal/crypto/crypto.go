package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeySize is the required length for symmetric keys.
const KeySize = 32

var (
	// ErrInvalidKey signals a symmetric key that is not exactly 32 bytes.
	ErrInvalidKey = errors.New("crypto: key must be 32 bytes")
	// ErrMalformedEnvelope signals an envelope that cannot be decoded or is too short to contain an IV.
	ErrMalformedEnvelope = errors.New("crypto: malformed envelope")
	// ErrDecryptionFailed signals a wrong key or corrupted ciphertext. The cause is
	// deliberately not distinguished further.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// Cipher performs symmetric envelope encryption with a process-wide key.
// All instances sharing a session store must be constructed with the same key.
type Cipher struct {
	key []byte
}

// NewCipher validates the key and returns a ready cipher.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKey, len(key))
	}
	c := &Cipher{key: make([]byte, KeySize)}
	copy(c.key, key)
	return c, nil
}

// GenerateKey returns a fresh random 32-byte key. Sessions encrypted under a
// generated key are unreadable after restart; callers are expected to warn
// when falling back to one.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext into a base64(IV || ciphertext) envelope using
// AES-256-CBC with PKCS#7 padding. A fresh random IV is drawn per call, so
// identical plaintexts produce distinct envelopes.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens an envelope produced by Encrypt. Undecodable or truncated
// envelopes fail with ErrMalformedEnvelope before any AES work happens; a
// wrong key or corrupted ciphertext surfaces as ErrDecryptionFailed.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(raw) < aes.BlockSize {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformedEnvelope, len(raw))
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(unpadded), nil
}

// SignHMAC returns the hex-encoded HMAC-SHA256 of data under secret.
func SignHMAC(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether candidate matches the HMAC of data under secret.
func VerifyHMAC(data, secret, candidate string) bool {
	return ConstantTimeEqual(SignHMAC(data, secret), candidate)
}

// ConstantTimeEqual compares two strings without leaking match position.
// Length is checked first so unequal-length buffers never reach the
// constant-time comparator.
func ConstantTimeEqual(expected, candidate string) bool {
	if len(candidate) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, false
		}
	}
	return data[:len(data)-padding], true
}
