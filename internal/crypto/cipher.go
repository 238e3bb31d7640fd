package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"

	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
)

// TokenCipher encrypts refresh tokens at rest with AES-256-GCM. The key is
// supplied base64 encoded through configuration and must be 32 bytes.
type TokenCipher struct {
	aead cipher.AEAD
}

func NewTokenCipher(base64Key string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errors.Wrap(err, "decode encryption key")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "init gcm")
	}

	return &TokenCipher{aead: aead}, nil
}

func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns ErrKeyMismatch when the ciphertext cannot be opened with
// the configured key, which happens after a deployment key rotation.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "decode ciphertext")
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, payload := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", errors.Wrap(syncerrors.ErrKeyMismatch, err.Error())
	}
	return string(plaintext), nil
}
