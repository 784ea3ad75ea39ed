// Package ratelimit enforces a minimum interval between successive calls to a
// named external service.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Service names used by the pipelines.
const (
	ServiceArchive = "archive"
	ServiceGeocode = "geocode"
)

// ErrUnknownService is returned by Wait for a service with no configured interval.
var ErrUnknownService = errors.New("unknown rate-limited service")

// Limiter tracks the last acquisition per service. Acquisitions for the same
// service are serialized, so the interval holds across all callers.
type Limiter struct {
	clock    clockwork.Clock
	services map[string]*slot
	observe  func(service string, waited time.Duration)
}

type slot struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	used     bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithObserver registers a callback that receives the time spent waiting on each acquisition.
func WithObserver(fn func(service string, waited time.Duration)) Option {
	return func(l *Limiter) { l.observe = fn }
}

// New creates a Limiter with a fixed interval per service name.
func New(intervals map[string]time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		clock:    clockwork.NewRealClock(),
		services: make(map[string]*slot, len(intervals)),
	}
	for name, d := range intervals {
		l.services[name] = &slot{interval: d}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval returns the configured interval for a service.
func (l *Limiter) Interval(service string) (time.Duration, bool) {
	s, ok := l.services[service]
	if !ok {
		return 0, false
	}
	return s.interval, true
}

// Wait blocks until at least the service interval has elapsed since the
// previous acquisition for that service, then records the new acquisition.
// The first call for a service returns immediately.
func (l *Limiter) Wait(ctx context.Context, service string) error {
	s, ok := l.services[service]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var waited time.Duration
	if s.used {
		if d := s.interval - l.clock.Since(s.last); d > 0 {
			start := l.clock.Now()
			select {
			case <-ctx.Done():
				return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
			case <-l.clock.After(d):
			}
			waited = l.clock.Since(start)
		}
	}

	s.last = l.clock.Now()
	s.used = true
	if l.observe != nil {
		l.observe(service, waited)
	}
	return nil
}
