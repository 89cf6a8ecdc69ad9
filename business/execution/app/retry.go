package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	blockchainDomain "github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

// RetryPolicy bounds retries of node calls.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

// backOff builds an exponential policy that stops after MaxAttempts tries or
// when ctx is done, whichever comes first.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialBackoff
	eb.MaxInterval = p.MaxBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	// The plan deadline bounds elapsed time through ctx.
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// retryable reports whether a failed node call may succeed if repeated.
func retryable(err error) bool {
	return apperror.HasCode(err, apperror.CodeNetworkError) ||
		apperror.HasCode(err, apperror.CodeRPCError)
}

// ambiguous reports whether a failed broadcast may still have reached the
// network. Breaker rejections never left the process.
func ambiguous(err error) bool {
	return apperror.HasCode(err, apperror.CodeNetworkError) &&
		apperror.GetReason(err) != blockchainDomain.ReasonCircuitOpen
}

func nonceTooLow(err error) bool {
	return apperror.GetReason(err) == blockchainDomain.ReasonNonceTooLow
}

// underpriced rejections repeat for the same signed bytes.
func underpriced(err error) bool {
	return apperror.GetReason(err) == blockchainDomain.ReasonUnderpriced
}
