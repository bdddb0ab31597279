package fetcher

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// BackoffPolicy computes jittered retry delays. Each retry waits
// exponentially longer, additionally scaled by the attempt number so repeat
// offenders back off harder.
type BackoffPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewBackoffPolicy builds a policy; zero values fall back to defaults.
func NewBackoffPolicy(maxAttempts int, base, ceiling time.Duration) *BackoffPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = 15 * time.Second
	}
	return &BackoffPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   base,
		maxDelay:    ceiling,
	}
}

// MaxAttempts returns the retry ceiling.
func (p *BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable at the given attempt
// (1-based).
func (p *BackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	var fe *monitor.FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// Backoff returns the wait duration before the next attempt (1-based).
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.baseDelay * time.Duration(attempt) << (attempt - 1)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	jitter := randomJitter(delay / 2)
	return delay/2 + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
