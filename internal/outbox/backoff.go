package outbox

import (
	"math/rand/v2"
	"time"

	"library-circulation/internal/config"
)

// RetryPolicy decides when a failed task is tried again.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Jitter returns a value in [0, 1). Nil means rand.Float64.
	Jitter func() float64
}

// PolicyFromConfig builds the policy from outbox settings.
func PolicyFromConfig(cfg config.OutboxConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}
}

// Delay returns min(InitialDelay*2^retryCount, MaxDelay) plus up to 10% jitter.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < retryCount && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	return delay + time.Duration(float64(delay/10)*jitter())
}

// Exhausted reports whether a task with retryCount failures must not run again.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}
