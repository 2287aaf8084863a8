package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedItem is returned for upstream items missing required fields
	// or frames that cannot be decoded. Such items are dropped, never retried.
	ErrMalformedItem = errors.New("malformed item")

	// ErrMissingReference marks a quote or repost whose referenced item was
	// not included by upstream.
	ErrMissingReference = errors.New("missing reference")

	// ErrTransientConnection covers network and read failures on the upstream
	// connection.
	ErrTransientConnection = errors.New("transient connection error")

	// ErrHeartbeatTimeout is returned when no frame or keep-alive arrived
	// within the heartbeat window.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrAuthentication is returned when upstream rejects the credentials.
	ErrAuthentication = errors.New("authentication failure")

	ErrTransientDelivery = errors.New("transient delivery error")
	ErrPermanentDelivery = errors.New("permanent delivery failure")
)

// DeliveryClass tells the delivery client how to treat a failed post.
type DeliveryClass int

const (
	DeliveryTransient DeliveryClass = iota
	DeliveryRateLimited
	DeliveryPermanent
)

func (c DeliveryClass) String() string {
	switch c {
	case DeliveryTransient:
		return "transient"
	case DeliveryRateLimited:
		return "rate_limited"
	case DeliveryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// DeliveryError is returned by destination sinks.
type DeliveryError struct {
	Class      DeliveryClass
	StatusCode int
	RetryAfter time.Duration // only meaningful for DeliveryRateLimited
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %v", e.Class, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrPermanentDelivery:
		return e.Class == DeliveryPermanent
	case ErrTransientDelivery:
		return e.Class != DeliveryPermanent
	}
	return false
}

// TransientError wraps err as a retryable delivery error.
func TransientError(statusCode int, err error) *DeliveryError {
	return &DeliveryError{Class: DeliveryTransient, StatusCode: statusCode, Err: err}
}

// RateLimitedError wraps err as a rate-limit response. A zero retryAfter
// means the destination gave no hint.
func RateLimitedError(statusCode int, retryAfter time.Duration, err error) *DeliveryError {
	return &DeliveryError{
		Class:      DeliveryRateLimited,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// PermanentError wraps err as a non-retryable delivery error.
func PermanentError(statusCode int, err error) *DeliveryError {
	return &DeliveryError{Class: DeliveryPermanent, StatusCode: statusCode, Err: err}
}

// PermanentDeliveryFailure is the terminal error of a delivery sequence,
// either because the destination rejected the message or the retry budget
// ran out.
type PermanentDeliveryFailure struct {
	Attempt   DeliveryAttempt
	Exhausted bool
}

func (e *PermanentDeliveryFailure) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempt.Attempts, e.Attempt.LastErr)
	}
	return fmt.Sprintf("delivery rejected on attempt %d: %v", e.Attempt.Attempts, e.Attempt.LastErr)
}

func (e *PermanentDeliveryFailure) Unwrap() error { return e.Attempt.LastErr }

func (e *PermanentDeliveryFailure) Is(target error) bool {
	return target == ErrPermanentDelivery
}
