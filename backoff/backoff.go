// Package backoff computes retry delays for failed sync attempts.
package backoff

import "time"

const (
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 2 * time.Second

	// DefaultMaxDelay caps the exponential growth at five minutes.
	DefaultMaxDelay = 5 * time.Minute
)

// Calculator produces exponential retry delays with a ceiling.
// The zero value is not usable; construct with New or Default.
type Calculator struct {
	base time.Duration
	max  time.Duration
}

// New creates a Calculator with the given base delay and ceiling.
// Non-positive values fall back to the defaults.
func New(base, max time.Duration) Calculator {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return Calculator{base: base, max: max}
}

// Default returns a Calculator with the standard base and ceiling.
func Default() Calculator {
	return New(DefaultBaseDelay, DefaultMaxDelay)
}

// Delay returns min(base * 2^retryCount, max). Deterministic, no jitter.
// Negative retry counts are treated as zero.
func (c Calculator) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := c.base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		// Doubling past the ceiling (or into overflow) can stop early.
		if delay >= c.max || delay <= 0 {
			return c.max
		}
	}

	if delay > c.max {
		return c.max
	}
	return delay
}
