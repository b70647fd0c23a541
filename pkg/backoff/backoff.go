// Package backoff provides exponential backoff with optional jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 250ms
	Max     time.Duration // default: 30s
	Jitter  float64       // fraction of the delay randomized, 0..1
}

// Exponential calculates the delay before the given attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on, capped
// at Max. With Jitter set, up to that fraction of the delay is subtracted at
// random so a fleet of agents does not retry in lockstep.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 250 * time.Millisecond
	maxDelay := 30 * time.Second
	jitter := 0.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxDelay = cfg.Max
		}
		if cfg.Jitter > 0 && cfg.Jitter <= 1 {
			jitter = cfg.Jitter
		}
	}

	if attempt < 1 {
		attempt = 1
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if jitter > 0 {
		delay -= delay * jitter * rand.Float64()
	}
	return time.Duration(delay)
}
