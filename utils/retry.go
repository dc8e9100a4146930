package utils

import (
	"math/rand"
	"strings"
	"time"
)

// Error fragments emitted by npm and node for transient network failures.
// Permission and validation failures are deliberately absent: retrying those
// can never succeed.
var transientErrorFragments = []string{
	"econnreset",
	"etimedout",
	"eai_again",
	"socket hang up",
	"network timeout",
	"fetch failed",
	"503 service unavailable",
}

// IsTransientError reports whether an error message looks like a transient
// network failure worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, fragment := range transientErrorFragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

// RetryPolicy executes an operation with exponential backoff and jitter.
// Sleep and Rand are injectable so tests can run without real timers.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether a failed attempt should be repeated.
	// A nil predicate retries transient network errors only.
	Retryable func(error) bool
	Sleep     func(time.Duration)
	Rand      func() float64
	Log       Log
}

func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, log Log) *RetryPolicy {
	if log == nil {
		log = &NullLog{}
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Log:         log,
	}
}

// Do runs the operation until it succeeds, the error is not retryable, or the
// attempt budget is exhausted. The last error is returned.
func (p *RetryPolicy) Do(operation func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransientError
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.backoffDelay(attempt, random)
			p.Log.Debug("Retrying in", delay.String(), "(attempt", attempt+1, "of", attempts, ")")
			sleep(delay)
		}
		err = operation()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		p.Log.Warn("Operation failed with a retryable error:", err.Error())
	}
	return err
}

func (p *RetryPolicy) backoffDelay(attempt int, random func() float64) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// Full jitter keeps concurrent clients from thundering in lockstep.
	return time.Duration(float64(delay) * (0.5 + random()/2))
}
