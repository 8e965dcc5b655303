package client

import (
	"sync"
	"time"
)

const (
	MaxReconnectAttempts = 5
	ReconnectBaseDelay   = 2 * time.Second
)

// Reconnector hands out linearly growing delays: base × attempt, up to
// maxAttempts. A successful open resets it.
type Reconnector struct {
	mu          sync.Mutex
	attempts    int
	maxAttempts int
	base        time.Duration
}

func NewReconnector(maxAttempts int, base time.Duration) *Reconnector {
	if maxAttempts <= 0 {
		maxAttempts = MaxReconnectAttempts
	}
	if base <= 0 {
		base = ReconnectBaseDelay
	}
	return &Reconnector{maxAttempts: maxAttempts, base: base}
}

// Next reports the delay before the next attempt, or false once attempts
// are exhausted.
func (r *Reconnector) Next() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempts >= r.maxAttempts {
		return 0, false
	}
	r.attempts++
	return r.base * time.Duration(r.attempts), true
}

func (r *Reconnector) Reset() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *Reconnector) MaxAttempts() int {
	return r.maxAttempts
}
