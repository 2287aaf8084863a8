// Package delivery sends formatted messages to the destination chat system
// with bounded retries.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
	"github.com/bombsimon/tweetrelay/internal/relay/metrics"
)

// Sink posts one message to the destination. It returns the destination's
// message id, or a *domain.DeliveryError telling transient, rate-limited and
// permanent failures apart. attemptID is stable across the retries of one
// message so sinks can pass it on as an idempotency key.
type Sink interface {
	Name() string
	Post(ctx context.Context, msg *domain.OutboundMessage, attemptID string) (string, error)
}

// Config holds delivery client settings.
type Config struct {
	Retry          RetryConfig
	RequestTimeout time.Duration // per post, 0 = none
	Breaker        *BreakerConfig
}

// Client delivers messages through a Sink.
type Client struct {
	sink    Sink
	cfg     Config
	breaker *Breaker
	log     *slog.Logger

	// Replaced in tests to run on a simulated clock.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewClient creates a delivery client for sink.
func NewClient(sink Sink, cfg Config) *Client {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	log := slog.Default().With("component", "delivery", "destination", sink.Name())

	c := &Client{
		sink:   sink,
		cfg:    cfg,
		log:    log,
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
	if cfg.Breaker != nil {
		c.breaker = NewBreaker(*cfg.Breaker, log)
	}
	return c
}

// Send delivers msg, retrying transient failures. Retries of one message are
// strictly sequential. A rate-limit hint from the destination replaces the
// backoff delay for that retry.
//
// On failure the error is a *domain.PermanentDeliveryFailure, or the context
// error if ctx ended first.
func (c *Client) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.Ack, error) {
	start := time.Now()
	destination := c.sink.Name()
	attempt := domain.DeliveryAttempt{ID: uuid.NewString(), Message: msg}

	defer func() {
		metrics.DeliveryLatency.WithLabelValues(destination).Observe(time.Since(start).Seconds())
	}()

	for {
		attempt.Attempts++

		messageID, err := c.post(ctx, msg, attempt.ID)
		if err == nil {
			metrics.DeliveryAttempts.WithLabelValues(destination, "success").Inc()
			logging.Trace(c.log, "Sent message successfully",
				"channel_id", msg.ChannelID,
				"message_id", messageID,
				"item_id", msg.ItemID,
				"attempts", attempt.Attempts,
			)
			return &domain.Ack{
				MessageID: messageID,
				ChannelID: msg.ChannelID,
				Attempts:  attempt.Attempts,
			}, nil
		}

		attempt.LastErr = err

		if ctx.Err() != nil {
			metrics.DeliveryAttempts.WithLabelValues(destination, "cancelled").Inc()
			return nil, fmt.Errorf("delivery of item %s abandoned: %w", msg.ItemID, ctx.Err())
		}

		action, retryAfter := ClassifyError(err)
		if action == ActionFatal {
			metrics.DeliveryAttempts.WithLabelValues(destination, "rejected").Inc()
			metrics.DeliveryFailures.WithLabelValues(destination, "rejected").Inc()
			c.log.Error("Destination rejected message, dropping",
				"error", err,
				"item_id", msg.ItemID,
				"permalink", msg.Permalink,
				"attempts", attempt.Attempts,
			)
			return nil, &domain.PermanentDeliveryFailure{Attempt: attempt}
		}

		metrics.DeliveryAttempts.WithLabelValues(destination, "transient").Inc()

		if attempt.Attempts >= c.cfg.Retry.MaxAttempts {
			metrics.DeliveryFailures.WithLabelValues(destination, "exhausted").Inc()
			c.log.Error("Retries exhausted, message must be posted manually",
				"error", err,
				"item_id", msg.ItemID,
				"permalink", msg.Permalink,
				"attempts", attempt.Attempts,
			)
			return nil, &domain.PermanentDeliveryFailure{Attempt: attempt, Exhausted: true}
		}

		delay := retryAfter
		if delay <= 0 {
			delay = calculateBackoff(attempt.Attempts-1, c.cfg.Retry, c.jitter())
		}

		c.log.Debug("Delivery failed, retrying",
			"error", err,
			"item_id", msg.ItemID,
			"attempt", attempt.Attempts,
			"delay", delay,
			"retry_after_hint", retryAfter > 0,
		)

		if err := c.sleep(ctx, delay); err != nil {
			metrics.DeliveryAttempts.WithLabelValues(destination, "cancelled").Inc()
			return nil, fmt.Errorf("delivery of item %s abandoned: %w", msg.ItemID, err)
		}
	}
}

func (c *Client) post(ctx context.Context, msg *domain.OutboundMessage, attemptID string) (string, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	if c.breaker == nil {
		return c.sink.Post(ctx, msg, attemptID)
	}

	return c.breaker.Execute(func() (string, error) {
		return c.sink.Post(ctx, msg, attemptID)
	})
}
