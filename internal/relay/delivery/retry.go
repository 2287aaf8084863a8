package delivery

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Jitter          float64 // extra delay as a fraction of the base delay, [0, 1)
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          0.2,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a failed post, together with the
// destination's retry-after hint when it sent one.
func ClassifyError(err error) (ErrorAction, time.Duration) {
	if err == nil {
		return ActionRetry, 0 // Should not happen
	}

	var de *domain.DeliveryError
	if errors.As(err, &de) {
		switch de.Class {
		case domain.DeliveryPermanent:
			return ActionFatal, 0
		case domain.DeliveryRateLimited:
			return ActionRetry, de.RetryAfter
		default:
			return ActionRetry, 0
		}
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ActionRetry, 0
	}

	// Default to Retry (network, request timeout, etc)
	return ActionRetry, 0
}

// calculateBackoff returns the delay before retry number attempt (0-indexed).
// With jitter below 1 the sequence is non-decreasing, including once it
// reaches MaxDelay.
func calculateBackoff(attempt int, config RetryConfig, jitter float64) time.Duration {
	multiple := config.BackoffMultiple
	if multiple < 1 {
		multiple = 2.0
	}

	delay := float64(config.InitialDelay) * math.Pow(multiple, float64(attempt))
	delay += delay * config.Jitter * jitter
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
