// Package resilience keeps conversations alive when a model backend
// misbehaves. It provides a three-state circuit breaker and a failover group
// that chains a primary LLM provider with fallbacks, each behind its own
// breaker, so one provider outage degrades to a slower answer instead of a
// silent call.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the breaker rejects a call without running
// it.
var ErrBreakerOpen = errors.New("breaker is open")

// BreakerState is the operating mode of a Breaker.
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerProbing lets a limited number of calls through to decide
	// whether to close again.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string
	// TripAfter is the count of consecutive failures that opens the
	// breaker. Default 5.
	TripAfter int
	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration
	// ProbeBudget is how many probe calls may run while probing. Default 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker, safe for concurrent use.
type Breaker struct {
	name        string
	tripAfter   int
	cooldown    time.Duration
	probeBudget int
	logger      *slog.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a breaker from cfg.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		logger:      logger,
	}
}

// Do runs fn unless the breaker rejects it. While open it returns
// ErrBreakerOpen without calling fn; while probing only the probe budget
// gets through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		b.probeFails = 0
		b.logger.Info("breaker probing", "name", b.name)
	case BreakerProbing:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probing := b.state == BreakerProbing
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure is called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()
	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.failures = b.tripAfter
		b.logger.Warn("breaker re-opened by failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.tripAfter {
		b.state = BreakerOpen
		b.logger.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess is called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			b.logger.Info("breaker closed after probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's mode. An open breaker past its cooldown
// reports probing; the actual transition happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}
