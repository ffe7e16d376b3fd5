// Package debounce provides per-key cancellable delayed triggers.
//
// Each conversation gets at most one pending trigger at a time: every Reset
// cancels the previous timer for the key and arms a fresh one at the full
// delay, so a burst of messages keeps pushing the fire moment back until the
// sender goes quiet ("sliding window" coalescing).
package debounce

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler holds the live timer table. One instance per process, injected
// into the dispatcher rather than held as a package global, so tests can
// build and tear it down deterministically.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*pending
	nextGen uint64
	logger  *slog.Logger
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*pending),
		logger: slog.Default(),
	}
}

// Reset cancels any pending trigger for key and schedules onFire to run after
// delay elapses with no further Reset for the same key. onFire runs on its
// own goroutine (the timer's), never on the caller's.
//
// Safe for concurrent use, including concurrent Resets on the same key: the
// generation counter guarantees that a fire which already slipped past
// Timer.Stop still observes it was superseded and backs off, so at most one
// onFire executes per burst.
func (s *Scheduler) Reset(key string, delay time.Duration, onFire func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	p := &pending{gen: gen}
	p.timer = time.AfterFunc(delay, func() {
		s.fire(key, gen, onFire)
	})
	s.timers[key] = p
}

func (s *Scheduler) fire(key string, gen uint64, onFire func() error) {
	s.mu.Lock()
	p, ok := s.timers[key]
	if !ok || p.gen != gen {
		// A newer Reset replaced this timer between expiry and lock
		// acquisition. That reset owns the key now.
		s.mu.Unlock()
		return
	}
	// Free the slot before running the handler: a message arriving while the
	// handler is in flight starts a fresh burst instead of racing this one.
	delete(s.timers, key)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("debounce handler panicked", "key", key, "panic", fmt.Sprint(r))
		}
	}()
	if err := onFire(); err != nil {
		s.logger.Error("debounce handler failed", "key", key, "error", err)
	}
}

// Pending reports the number of keys with an armed timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops all pending timers without firing them.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
}
