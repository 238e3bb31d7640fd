package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
)

func testKey(b byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewTokenCipher_RejectsBadKeys(t *testing.T) {
	_, err := NewTokenCipher("not-base64!!")
	assert.Error(t, err)

	_, err = NewTokenCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("1//0refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, "1//0refresh-token-value", encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "1//0refresh-token-value", decrypted)
}

func TestTokenCipher_NoncePerEncryption(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)

	first, err := cipher.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenCipher_WrongKeyIsKeyMismatch(t *testing.T) {
	writer, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)
	reader, err := NewTokenCipher(testKey(2))
	require.NoError(t, err)

	encrypted, err := writer.Encrypt("secret")
	require.NoError(t, err)

	_, err = reader.Decrypt(encrypted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerrors.ErrKeyMismatch))
}

func TestTokenCipher_GarbageCiphertext(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)

	_, err = cipher.Decrypt("%%%")
	assert.Error(t, err)

	_, err = cipher.Decrypt(base64.StdEncoding.EncodeToString([]byte("xx")))
	assert.Error(t, err)
}
