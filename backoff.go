package shardkvx

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffCalculator returns how long to wait before the given retry attempt,
// attempts are numbered from 0.
type BackoffCalculator func(retryAttempts uint32) time.Duration

// ExponentialBackoff calculates a backoff of min*backoffFactor^attempts,
// capped at max. A factor of 0 uses 2.
func ExponentialBackoff(min, max time.Duration, backoffFactor float64) BackoffCalculator {
	var minBackoff float64 = 1000000   // 1 Millisecond
	var maxBackoff float64 = 500000000 // 500 Milliseconds
	var factor float64 = 2

	if min > 0 {
		minBackoff = float64(min)
	}
	if max > 0 {
		maxBackoff = float64(max)
	}
	if backoffFactor > 0 {
		factor = backoffFactor
	}

	return func(retryAttempts uint32) time.Duration {
		backoff := minBackoff * math.Pow(factor, float64(retryAttempts))

		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if backoff < minBackoff {
			backoff = minBackoff
		}

		return time.Duration(backoff)
	}
}

// WithJitter spreads the backoff of calc uniformly across
// [backoff*(1-fraction), backoff] so concurrent retriers do not line up.
func WithJitter(calc BackoffCalculator, fraction float64) BackoffCalculator {
	if fraction <= 0 {
		return calc
	}
	if fraction > 1 {
		fraction = 1
	}

	return func(retryAttempts uint32) time.Duration {
		backoff := float64(calc(retryAttempts))
		return time.Duration(backoff - backoff*fraction*rand.Float64())
	}
}
