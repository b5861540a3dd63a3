// Package crypto seals notification channel secrets at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecrypt = errors.New("crypto: decrypt failed")

// Box encrypts and decrypts short secrets with a symmetric key.
type Box struct {
	key [32]byte
}

// New derives a sealing key from the configured notification key.
func New(notificationKey string) *Box {
	b := &Box{}
	b.key = sha256.Sum256([]byte(notificationKey))
	return b
}

// Encrypt seals plaintext and returns a base64 token with the nonce
// prefixed.
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt.
func (b *Box) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < 24 {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(opened), nil
}
