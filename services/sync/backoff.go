package sync

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
)

// classifyFailure buckets a sync error for the retry decision. Only
// transient failures are worth retrying; auth failures already deactivated
// the account and permanent ones will fail identically next attempt.
func classifyFailure(err error) enum.FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, syncerrors.ErrAuthExpired),
		errors.Is(err, syncerrors.ErrMissingCredential),
		errors.Is(err, syncerrors.ErrKeyMismatch):
		return enum.FailureAuth
	case errors.Is(err, syncerrors.ErrProviderTransient),
		errors.Is(err, context.DeadlineExceeded):
		return enum.FailureTransient
	default:
		return enum.FailurePermanent
	}
}

// retryPolicy computes the delay before re-enqueueing a failed sync.
type retryPolicy struct {
	maxAttempts int
	backoff     *backoff.Backoff
}

func newRetryPolicy(maxAttempts, baseSeconds int) *retryPolicy {
	base := time.Duration(baseSeconds) * time.Second
	return &retryPolicy{
		maxAttempts: maxAttempts,
		backoff: &backoff.Backoff{
			Min:    base,
			Max:    base * 16,
			Factor: 2,
			Jitter: true,
		},
	}
}

// NextDelay returns the wait before retry number attempt (1-based) and
// whether a retry should happen at all.
func (p *retryPolicy) NextDelay(err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxAttempts {
		return 0, false
	}
	if classifyFailure(err) != enum.FailureTransient {
		return 0, false
	}
	return p.backoff.ForAttempt(float64(attempt - 1)), true
}
