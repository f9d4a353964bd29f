package natsclient

import (
	"sync"
	"time"
)

const (
	defaultBreakerThreshold = 5
	initialBackoff          = time.Second
	defaultMaxBackoff       = time.Minute
)

// breaker refuses connect attempts for a backoff window once threshold
// consecutive attempts failed. Each window that ends in another run of
// failures doubles the backoff, up to max.
type breaker struct {
	mu sync.Mutex

	threshold  int
	maxBackoff time.Duration
	now        func() time.Time

	consecutive int
	total       int
	backoff     time.Duration
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker(threshold int, maxBackoff time.Duration) *breaker {
	return &breaker{
		threshold:  threshold,
		maxBackoff: maxBackoff,
		now:        time.Now,
		backoff:    initialBackoff,
	}
}

// allow reports whether an attempt may be made now
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

// open reports whether the breaker is refusing attempts
func (b *breaker) open() bool {
	return !b.allow()
}

// failure records a failed attempt. It returns the window the breaker opened
// for, or zero if it stays closed.
func (b *breaker) failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.total++
	b.consecutive++
	b.lastFailure = now

	if b.consecutive < b.threshold {
		return 0
	}

	wait := b.backoff
	b.openUntil = now.Add(wait)
	b.consecutive = 0
	b.backoff = min(b.backoff*2, b.maxBackoff)
	return wait
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.total = 0
	b.backoff = initialBackoff
	b.openUntil = time.Time{}
	b.lastFailure = time.Time{}
}

// nextBackoff returns the window the next opening will last
func (b *breaker) nextBackoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backoff
}

func (b *breaker) failures() (int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.lastFailure
}
