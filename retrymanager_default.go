package shardkvx

import (
	"context"
	"errors"
	"time"

	"github.com/kvshard/shardkvx/kvrpcx"
)

const (
	defaultRetryMinBackoff = 2 * time.Millisecond
	defaultRetryMaxBackoff = 500 * time.Millisecond
	defaultMaxRetries      = 10
)

type RetryManagerDefaultOptions struct {
	// MinBackoff and MaxBackoff bound the exponential backoff between
	// attempts. They default to 2ms and 500ms.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// MaxRetries is the number of retries allowed per operation before
	// ErrRetriesExhausted is returned. Defaults to 10.
	MaxRetries uint32

	// JitterFraction randomises each backoff downwards by up to this
	// fraction. Defaults to 0.2.
	JitterFraction float64
}

// RetryManagerDefault retries routing errors, missing leaders, dispatch
// failures and locked keys with jittered exponential backoff, up to a retry ceiling.
type RetryManagerDefault struct {
	calc       BackoffCalculator
	maxRetries uint32
}

var _ RetryManager = (*RetryManagerDefault)(nil)

func NewRetryManagerDefault(opts *RetryManagerDefaultOptions) *RetryManagerDefault {
	if opts == nil {
		opts = &RetryManagerDefaultOptions{}
	}

	minBackoff := opts.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultRetryMinBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultRetryMaxBackoff
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	jitter := opts.JitterFraction
	if jitter == 0 {
		jitter = 0.2
	}

	return &RetryManagerDefault{
		calc:       WithJitter(ExponentialBackoff(minBackoff, maxBackoff, 2), jitter),
		maxRetries: maxRetries,
	}
}

func (m *RetryManagerDefault) NewRetryController() RetryController {
	return &retryControllerDefault{
		parent: m,
	}
}

type retryControllerDefault struct {
	parent     *RetryManagerDefault
	retryCount uint32
}

func (rc *retryControllerDefault) isRetriableError(err error) bool {
	// an inner operation already spent its own retry budget
	if errors.Is(err, ErrRetriesExhausted) {
		return false
	}

	return isRoutingError(err) ||
		errors.Is(err, kvrpcx.ErrKeyIsLocked)
}

func (rc *retryControllerDefault) ShouldRetry(ctx context.Context, err error) (time.Duration, bool, error) {
	if !rc.isRetriableError(err) {
		return 0, false, nil
	}

	if rc.retryCount >= rc.parent.maxRetries {
		return 0, false, retriesExhaustedError{
			Attempts: rc.retryCount + 1,
			Cause:    err,
		}
	}

	// calculate the retry time for this attempt
	retryTime := rc.parent.calc(rc.retryCount)

	// increment the retry count
	rc.retryCount++

	return retryTime, true, nil
}
