// Package supervisor owns the upstream connection and drives the relay
// pipeline: every frame is classified, filtered, formatted and queued for
// the delivery workers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
	"github.com/bombsimon/tweetrelay/internal/relay/classify"
	"github.com/bombsimon/tweetrelay/internal/relay/filter"
	"github.com/bombsimon/tweetrelay/internal/relay/format"
	"github.com/bombsimon/tweetrelay/internal/relay/metrics"
)

// Config holds supervisor settings.
type Config struct {
	Handle string

	BackoffFloor     time.Duration
	BackoffCeiling   time.Duration
	ResetAfter       time.Duration // streaming this long clears the failure count
	HeartbeatTimeout time.Duration // 0 = no heartbeat check

	Workers       int
	QueueSize     int
	ShutdownGrace time.Duration

	DedupWindow           int
	DedupAcrossReconnects bool
}

// Supervisor runs the connection state machine for one tracked handle.
// State, failure count and the recent-id window belong to the goroutine
// running Run.
type Supervisor struct {
	cfg       Config
	source    Source
	policy    *filter.Policy
	formatter *format.Formatter
	sender    Sender
	backoff   Backoff
	log       *slog.Logger

	state    domain.ConnectionState
	failures int
	epoch    int
	recent   *recentIDs

	lastFrame     atomic.Int64 // unix nanos
	stateCallback func(domain.Transition)

	// Replaced in tests to run on a simulated clock.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a Supervisor.
func New(cfg Config, source Source, policy *filter.Policy, formatter *format.Formatter, sender Sender) *Supervisor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	return &Supervisor{
		cfg:       cfg,
		source:    source,
		policy:    policy,
		formatter: formatter,
		sender:    sender,
		backoff:   Backoff{Floor: cfg.BackoffFloor, Ceiling: cfg.BackoffCeiling},
		log:       slog.Default().With("component", "supervisor", "handle", cfg.Handle),
		state:     domain.StateDisconnected,
		recent:    newRecentIDs(cfg.DedupWindow),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// SetStateChangeCallback registers fn to be called on every state change.
// It runs on the supervisor goroutine and must not block.
func (s *Supervisor) SetStateChangeCallback(fn func(domain.Transition)) {
	s.stateCallback = fn
}

// LastFrame returns when the last frame or keep-alive was received, or the
// zero time if none has been.
func (s *Supervisor) LastFrame() time.Time {
	nanos := s.lastFrame.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Run streams until ctx is cancelled or authentication is rejected. After
// cancellation the queued and in-flight deliveries get ShutdownGrace to
// finish before they are abandoned.
func (s *Supervisor) Run(ctx context.Context) error {
	queue := make(chan *domain.OutboundMessage, s.cfg.QueueSize)

	deliveryCtx, cancelDelivery := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDelivery()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.deliverLoop(deliveryCtx, id, queue)
		}(i)
	}

	err := s.readLoop(ctx, queue)

	reason := "context cancelled"
	if err != nil {
		reason = err.Error()
	}
	s.transition(domain.StateShuttingDown, reason, 0)

	close(queue)
	s.drain(&wg, cancelDelivery, len(queue))

	return err
}

func (s *Supervisor) drain(wg *sync.WaitGroup, cancel context.CancelFunc, pending int) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if pending > 0 {
		s.log.Info("Waiting for queued deliveries", "pending", pending, "grace", s.cfg.ShutdownGrace)
	}

	timer := time.NewTimer(s.cfg.ShutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		s.log.Warn("Shutdown grace period elapsed, abandoning deliveries")
		cancel()
		<-done
	}
}

func (s *Supervisor) readLoop(ctx context.Context, queue chan<- *domain.OutboundMessage) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.transition(domain.StateConnecting, "connect", 0)

		stream, err := s.source.Connect(ctx, s.cfg.Handle)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrAuthentication) {
				s.log.Error("Upstream rejected credentials, giving up", "error", err)
				return fmt.Errorf("connect to upstream: %w", err)
			}
			if !s.wait(ctx, "connect_failed", err) {
				return nil
			}
			continue
		}

		s.transition(domain.StateStreaming, "handshake complete", 0)
		s.startEpoch()

		started := s.now()
		err = s.consume(ctx, stream, queue)
		if closeErr := stream.Close(); closeErr != nil {
			s.log.Debug("Failed to close upstream stream", "error", closeErr)
		}

		if ctx.Err() != nil {
			return nil
		}

		if s.cfg.ResetAfter > 0 && s.now().Sub(started) >= s.cfg.ResetAfter {
			s.failures = 0
		}

		if !s.wait(ctx, disconnectReason(err), err) {
			return nil
		}
	}
}

// wait moves to Backoff and sleeps. It returns false if ctx ended first.
func (s *Supervisor) wait(ctx context.Context, reason string, cause error) bool {
	delay := s.backoff.Delay(s.failures)
	s.failures++

	metrics.Reconnects.WithLabelValues(reason).Inc()
	s.transition(domain.StateBackoff, reason, delay)

	s.log.Warn("Upstream connection lost, reconnecting",
		"reason", reason,
		"error", cause,
		"backoff", delay,
		"consecutive_failures", s.failures,
	)

	return s.sleep(ctx, delay) == nil
}

func (s *Supervisor) startEpoch() {
	s.epoch++
	if !s.cfg.DedupAcrossReconnects {
		s.recent.Reset()
	}
	s.log.Info("starting stream, watching "+s.cfg.Handle, "epoch", s.epoch)
}

func (s *Supervisor) consume(ctx context.Context, stream Stream, queue chan<- *domain.OutboundMessage) error {
	for {
		frame, err := s.next(ctx, stream)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedItem) && ctx.Err() == nil {
				metrics.ItemsDropped.WithLabelValues("malformed").Inc()
				s.log.Warn("Dropping undecodable frame", "error", err)
				continue
			}
			return err
		}

		s.lastFrame.Store(s.now().UnixNano())

		if frame.KeepAlive {
			logging.Trace(s.log, "Received keep-alive")
			continue
		}
		if frame.Item == nil {
			continue
		}

		if err := s.dispatch(ctx, frame.Item, queue); err != nil {
			return err
		}
	}
}

func (s *Supervisor) next(ctx context.Context, stream Stream) (Frame, error) {
	if s.cfg.HeartbeatTimeout <= 0 {
		return stream.Next(ctx)
	}

	hbCtx, cancel := context.WithTimeout(ctx, s.cfg.HeartbeatTimeout)
	defer cancel()

	frame, err := stream.Next(hbCtx)
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(hbCtx.Err(), context.DeadlineExceeded)
	if err != nil && ctx.Err() == nil && timedOut {
		return Frame{}, fmt.Errorf("no frame within %s: %w", s.cfg.HeartbeatTimeout, domain.ErrHeartbeatTimeout)
	}
	return frame, err
}

// dispatch runs one item through the pipeline. Per-item failures are logged
// and dropped; only cancellation is returned.
func (s *Supervisor) dispatch(ctx context.Context, item *domain.RawItem, queue chan<- *domain.OutboundMessage) error {
	metrics.ItemsReceived.Inc()
	logging.Trace(s.log, "Received item", "item_id", item.ID, "author", item.Author, "body", item.Body)

	classified, err := classify.Classify(item)
	if err != nil {
		metrics.ItemsDropped.WithLabelValues("malformed").Inc()
		s.log.Warn("Dropping malformed item", "error", err, "item_id", item.ID)
		return nil
	}

	if !s.policy.Admit(classified) {
		metrics.ItemsDropped.WithLabelValues("filtered").Inc()
		return nil
	}

	if !s.recent.Add(item.ID) {
		metrics.ItemsDropped.WithLabelValues("duplicate").Inc()
		logging.Trace(s.log, "Item already forwarded, skipping", "item_id", item.ID, "epoch", s.epoch)
		return nil
	}

	msg := s.formatter.Format(classified)
	logging.Trace(s.log, "Forwarding item", "item_id", item.ID, "kind", classified.Kind, "text", msg.Text)

	select {
	case queue <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	metrics.ItemsForwarded.WithLabelValues(classified.Kind.String()).Inc()
	metrics.QueueDepth.Set(float64(len(queue)))

	return nil
}

func (s *Supervisor) deliverLoop(ctx context.Context, worker int, queue <-chan *domain.OutboundMessage) {
	log := s.log.With("worker", worker)

	for msg := range queue {
		metrics.QueueDepth.Set(float64(len(queue)))

		if ctx.Err() != nil {
			log.Error("Abandoned queued message at shutdown", "item_id", msg.ItemID, "permalink", msg.Permalink)
			continue
		}

		ack, err := s.sender.Send(ctx, msg)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Error("Abandoned in-flight delivery at shutdown", "item_id", msg.ItemID, "permalink", msg.Permalink)
				continue
			}
			// The delivery client already logged the failure with the permalink.
			log.Debug("Message not delivered", "item_id", msg.ItemID, "error", err)
			continue
		}

		log.Info("Forwarded item", "item_id", msg.ItemID, "message_id", ack.MessageID, "attempts", ack.Attempts)
	}
}

func (s *Supervisor) transition(to domain.ConnectionState, reason string, backoff time.Duration) {
	from := s.state
	if !domain.CanTransition(from, to) {
		s.log.Error("Invalid connection state transition", "from", from, "to", to, "reason", reason)
	}
	s.state = to

	s.log.Debug("Connection state change", "from", from, "to", to, "reason", reason)

	if s.stateCallback != nil {
		s.stateCallback(domain.Transition{
			From:      from,
			To:        to,
			Reason:    reason,
			Backoff:   backoff,
			Timestamp: s.now(),
		})
	}
}

func disconnectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrHeartbeatTimeout):
		return "heartbeat_timeout"
	case errors.Is(err, io.EOF):
		return "upstream_closed"
	default:
		return "read_error"
	}
}

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
