// Package credentials encrypts mail account passwords at rest.
//
// Each ciphertext carries its own random salt; the AES-256 key is derived
// from the configured secret with Argon2id, so the secret itself never has
// to be 32 bytes long.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"

	"mailbridge/mailerr"
)

var (
	ErrEmptyKey        = errors.New("encryption key is empty")
	ErrMalformed       = errors.New("ciphertext is malformed")
	ErrDecryptFailed   = errors.New("failed to decrypt data")
	ErrEmptyPlaintext  = errors.New("decrypted value is empty")
	ErrNothingToEncode = errors.New("plaintext is empty")
)

const (
	keySize   = 32 // AES-256
	saltSize  = 16
	nonceSize = 12

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

func deriveKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, keySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under secret and returns base64(salt|nonce|sealed).
func Encrypt(plaintext, secret string) (string, error) {
	if secret == "" {
		return "", &mailerr.CryptoError{Op: "encrypt", Err: ErrEmptyKey}
	}
	if plaintext == "" {
		return "", &mailerr.CryptoError{Op: "encrypt", Err: ErrNothingToEncode}
	}

	buf := make([]byte, saltSize+nonceSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", &mailerr.CryptoError{Op: "encrypt", Err: err}
	}
	salt, nonce := buf[:saltSize], buf[saltSize:]

	gcm, err := newGCM(deriveKey(secret, salt))
	if err != nil {
		return "", &mailerr.CryptoError{Op: "encrypt", Err: err}
	}

	sealed := gcm.Seal(buf, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A wrong secret, a tampered value or an empty
// result are all reported as a CryptoError; it never returns "" with a nil error.
func Decrypt(ciphertext, secret string) (string, error) {
	if secret == "" {
		return "", &mailerr.CryptoError{Op: "decrypt", Err: ErrEmptyKey}
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < saltSize+nonceSize+1 {
		return "", &mailerr.CryptoError{Op: "decrypt", Err: ErrMalformed}
	}
	salt, nonce, sealed := raw[:saltSize], raw[saltSize:saltSize+nonceSize], raw[saltSize+nonceSize:]

	gcm, err := newGCM(deriveKey(secret, salt))
	if err != nil {
		return "", &mailerr.CryptoError{Op: "decrypt", Err: err}
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &mailerr.CryptoError{Op: "decrypt", Err: ErrDecryptFailed}
	}
	if len(plaintext) == 0 {
		return "", &mailerr.CryptoError{Op: "decrypt", Err: ErrEmptyPlaintext}
	}
	return string(plaintext), nil
}

// Cipher binds Encrypt and Decrypt to one process-wide secret.
type Cipher struct {
	secret string
}

// NewCipher returns a Cipher for secret. An empty secret is a CryptoError.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, &mailerr.CryptoError{Op: "init", Err: ErrEmptyKey}
	}
	return &Cipher{secret: secret}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, c.secret)
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	return Decrypt(ciphertext, c.secret)
}
