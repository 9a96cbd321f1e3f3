package application

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxBackoffSteps = 32

// BackoffPolicy spaces out retries of targets that found no account.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before the attempt following the given number of consecutive deferrals.
// It is deterministic: jitter is disabled so campaigns replay the same schedule.
func (p BackoffPolicy) Delay(deferrals int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	if deferrals < 1 {
		deferrals = 1
	}
	if deferrals > maxBackoffSteps {
		deferrals = maxBackoffSteps
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.Initial
	if p.Max > p.Initial {
		b.MaxInterval = p.Max
	}
	b.Reset()

	var delay time.Duration
	for range deferrals {
		delay = b.NextBackOff()
	}
	return delay
}
