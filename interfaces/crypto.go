package interfaces

// TokenCipher encrypts refresh credentials at rest. Decrypt fails with
// ErrKeyMismatch when the ciphertext was produced under a different
// deployment key.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
