// Package retry provides retry logic with exponential backoff for transient
// session-store errors.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds retry configuration parameters.
type Config struct {
	// MaxAttempts is the maximum number of attempts (default: 5).
	// The initial write counts as attempt 1.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry (default: 20ms).
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (default: 1s).
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds randomness so writers that conflicted once do not collide
	// again (default: 0.2 = 20%).
	// Delay is multiplied by (1 + random(-jitter, +jitter)).
	Jitter float64

	// OnRetry, if set, is called before each backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the default retry configuration.
// - 5 max attempts
// - 20 millisecond initial delay
// - 1 second max delay
// - 2x exponential multiplier
// - 20% jitter
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Disabled returns a configuration that disables retries (single attempt).
func Disabled() Config {
	return Config{MaxAttempts: 1}
}

// Delay calculates the delay for a given attempt number (0-indexed).
// Formula: min(maxDelay, initialDelay * multiplier^attempt) * (1 + jitter)
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter > 0 {
		delay *= 1.0 + (rand.Float64()*2-1)*c.Jitter
	}

	return time.Duration(delay)
}
