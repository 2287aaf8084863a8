package delivery

import (
	"errors"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

// BreakerConfig configures the circuit breaker in front of a sink.
type BreakerConfig struct {
	// FailureThreshold failures out of the last FailureWindow posts open the
	// circuit.
	FailureThreshold uint
	FailureWindow    uint

	// Delay is how long the circuit stays open before a trial post.
	Delay time.Duration
}

// Breaker stops hammering a destination that keeps failing. Only transient
// failures count against it; a rejected message says nothing about the
// destination's health.
type Breaker struct {
	cb circuitbreaker.CircuitBreaker[string]
}

// NewBreaker creates a Breaker.
func NewBreaker(cfg BreakerConfig, log *slog.Logger) *Breaker {
	if cfg.FailureWindow == 0 {
		cfg.FailureWindow = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.FailureWindow {
		cfg.FailureThreshold = cfg.FailureWindow
	}
	if cfg.Delay == 0 {
		cfg.Delay = 30 * time.Second
	}

	cb := circuitbreaker.NewBuilder[string]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureWindow).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		HandleIf(func(_ string, err error) bool {
			return err != nil && !errors.Is(err, domain.ErrPermanentDelivery)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.Warn("Delivery circuit breaker state change",
				"from_state", stateName(event.OldState),
				"to_state", stateName(event.NewState),
			)
		}).
		Build()

	return &Breaker{cb: cb}
}

// Execute runs fn through the breaker. While open it returns an error
// matching circuitbreaker.ErrOpen without calling fn.
func (b *Breaker) Execute(fn func() (string, error)) (string, error) {
	return failsafe.With[string](b.cb).Get(fn)
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
