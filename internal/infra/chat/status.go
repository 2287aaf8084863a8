// Package chat implements delivery sinks for the supported chat systems.
package chat

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

const (
	KindMattermost = "mattermost"
	KindDiscord    = "discord"
)

// DefaultMaxLength returns the message text limit of a destination kind.
func DefaultMaxLength(kind string) int {
	switch kind {
	case KindMattermost:
		return mattermostMaxRunes
	case KindDiscord:
		return discordMaxContent
	default:
		return 0
	}
}

// classifyStatus maps a non-success HTTP status to a delivery error. 408,
// 429 and 5xx are transient, any other 4xx is permanent.
func classifyStatus(statusCode int, retryAfter time.Duration, cause error) *domain.DeliveryError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		if retryAfter > 0 {
			return domain.RateLimitedError(statusCode, retryAfter, cause)
		}
		return domain.TransientError(statusCode, cause)
	case statusCode == http.StatusRequestTimeout:
		return domain.TransientError(statusCode, cause)
	case statusCode >= 500:
		return domain.TransientError(statusCode, cause)
	case statusCode >= 400:
		return domain.PermanentError(statusCode, cause)
	default:
		return domain.TransientError(statusCode, fmt.Errorf("unexpected status %d: %w", statusCode, cause))
	}
}

// retryAfterHeader reads Retry-After (delta seconds, fractional allowed, or
// an HTTP date) and falls back to X-RateLimit-Reset-After and
// X-RateLimit-Reset.
func retryAfterHeader(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if d := parseSeconds(v); d > 0 {
			return d
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}

	if d := parseSeconds(h.Get("X-RateLimit-Reset-After")); d > 0 {
		return d
	}

	// Mattermost sends seconds until reset here; Discord an epoch timestamp,
	// which is only used when it lies in the future.
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || secs <= 0 {
			return 0
		}
		if secs > 1e9 {
			whole, frac := math.Modf(secs)
			reset := time.Unix(int64(whole), int64(frac*float64(time.Second)))
			if reset.After(now) {
				return reset.Sub(now)
			}
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	return 0
}

func parseSeconds(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
