package errors

import "github.com/pkg/errors"

var (
	// auth errors
	ErrAuthExchange = errors.New("authorization code exchange rejected")
	ErrAuthExpired  = errors.New("credential expired or revoked")
	ErrKeyMismatch  = errors.New("ciphertext does not match encryption key")

	// provider errors
	ErrProviderTransient = errors.New("transient provider error")
	ErrProviderPermanent = errors.New("permanent provider error")
	ErrCursorInvalid     = errors.New("provider rejected sync cursor")

	// sync errors
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrMissingCredential = errors.New("account has no refresh credential")
)
