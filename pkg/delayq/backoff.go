package delayq

import "time"

// Backoff returns the delay before retry attempt n (0-based) using
// exponential growth: base * 2^attempt, capped at max. A non-positive
// base disables backoff entirely.
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := base
	for range attempt {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
