package cache

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes the breaker in front of the redis level.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// Timeout is how long an open breaker refuses calls before letting a trial call through.
	Timeout time.Duration
	// HalfOpenMaxCalls successful trial calls close it again.
	HalfOpenMaxCalls uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

type breaker struct {
	cb    *gobreaker.CircuitBreaker
	trips atomic.Int64
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}

	b := &breaker{}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.trips.Add(1)
			}
		},
	})
	return b
}

// Execute runs fn unless the breaker is open. Refusals, including extra
// trial calls while half-open, surface as ErrCircuitBreakerOpen.
func (b *breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitBreakerOpen
	}
	return err
}

func (b *breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *breaker) Stats() map[string]interface{} {
	counts := b.cb.Counts()
	return map[string]interface{}{
		"state":                b.cb.State().String(),
		"trips":                b.trips.Load(),
		"requests":             counts.Requests,
		"consecutive_failures": counts.ConsecutiveFailures,
		"total_failures":       counts.TotalFailures,
	}
}
