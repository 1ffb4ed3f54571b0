// Package cryptox implements the credential cipher used to protect access-key
// material at rest. A single process-wide key is configured at startup.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the required key length (AES-256).
const KeySize = 32

// Cipher encrypts and decrypts credential strings with AES-256-GCM.
//
// Ciphertexts are URL-safe base64 of nonce||sealed, so they can be stored in
// plain text columns. Every call to Encrypt uses a fresh random nonce, which
// also keeps the two halves of an access key from ever producing equal
// ciphertexts.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// KeyFromBase64 decodes a standard or URL-safe base64 key.
func KeyFromBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if key, err := enc.DecodeString(s); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("cipher key must be %d bytes, got %d", KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("cipher key is not valid base64")
}

// DeriveKey stretches a passphrase into a cipher key with argon2id.
// The same passphrase and salt always produce the same key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Encrypt seals plaintext and returns the encoded ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure (bad encoding, truncated data, wrong
// key, tampering) is reported as common.ErrCredentialDecryption and never
// returns partial plaintext.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", common.ErrCredentialDecryption, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", common.ErrCredentialDecryption)
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCredentialDecryption, err)
	}
	return string(plaintext), nil
}
