// Package ratelimit spaces out requests per key. Limiter is used to be polite
// to feed hosts; RateLimiter also guards manual refreshes.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter reports whether an action for key may proceed now.
type RateLimiter interface {
	Allow(key string) bool
}

// Limiter enforces a minimum interval between requests to the same host.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow records the request and returns true if minInterval has elapsed
// since the last accepted one. A refused request does not move the window.
func (l *Limiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[host]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[host] = now
	return true
}

// Wait blocks until a request to host is allowed. Concurrent callers are
// given consecutive slots.
func (l *Limiter) Wait(host string) {
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := l.hosts[host]; ok {
		if earliest := last.Add(l.minInterval); earliest.After(now) {
			next = earliest
		}
	}
	l.hosts[host] = next
	l.mu.Unlock()

	if d := next.Sub(now); d > 0 {
		time.Sleep(d)
	}
}

func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}

var _ RateLimiter = (*Limiter)(nil)
