package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Encrypter seals secret setting values before they are persisted.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// AEADEncrypter seals values with AES-256-GCM. Output is base64 of
// nonce||ciphertext, so every call yields a different string.
type AEADEncrypter struct {
	aead cipher.AEAD
}

// NewAEADEncrypter derives the AES key from appKey with SHA-256.
func NewAEADEncrypter(appKey string) (*AEADEncrypter, error) {
	if appKey == "" {
		return nil, fmt.Errorf("encryption key not configured")
	}
	key := sha256.Sum256([]byte(appKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &AEADEncrypter{aead: aead}, nil
}

func (e *AEADEncrypter) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The settings read path never calls it.
func (e *AEADEncrypter) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	size := e.aead.NonceSize()
	if len(sealed) < size {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := e.aead.Open(nil, sealed[:size], sealed[size:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}
