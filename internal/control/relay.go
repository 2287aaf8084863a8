package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bombsimon/tweetrelay/internal/core/config"
	"github.com/bombsimon/tweetrelay/internal/infra/chat"
	redisclient "github.com/bombsimon/tweetrelay/internal/infra/redis"
	"github.com/bombsimon/tweetrelay/internal/infra/upstream"
	"github.com/bombsimon/tweetrelay/internal/relay/delivery"
	"github.com/bombsimon/tweetrelay/internal/relay/filter"
	"github.com/bombsimon/tweetrelay/internal/relay/format"
	"github.com/bombsimon/tweetrelay/internal/relay/health"
	"github.com/bombsimon/tweetrelay/internal/relay/supervisor"
)

// Relay is the main application struct wiring the pipeline together.
type Relay struct {
	cfg          *config.AppConfig
	supervisor   *supervisor.Supervisor
	healthServer *health.Server
	log          *slog.Logger
}

// NewRelay creates a Relay with all dependencies initialized. cfg must
// already have defaults applied.
func NewRelay(cfg *config.AppConfig) (*Relay, error) {
	// 1. Destination
	sink, err := newSink(cfg.Destination, cfg.Delivery.RequestTimeout)
	if err != nil {
		return nil, err
	}

	maxLength := cfg.Destination.MaxLength
	if maxLength == 0 {
		maxLength = chat.DefaultMaxLength(cfg.Destination.Kind)
	}

	deliveryCfg := delivery.Config{
		Retry: delivery.RetryConfig{
			MaxAttempts:     cfg.Delivery.MaxAttempts,
			InitialDelay:    cfg.Delivery.InitialDelay,
			MaxDelay:        cfg.Delivery.MaxDelay,
			BackoffMultiple: 2,
			Jitter:          valueOr(cfg.Delivery.Jitter, 0),
		},
		RequestTimeout: cfg.Delivery.RequestTimeout,
	}
	if cb := cfg.Delivery.CircuitBreaker; cb.Enabled {
		deliveryCfg.Breaker = &delivery.BreakerConfig{
			FailureThreshold: cb.FailureThreshold,
			FailureWindow:    cb.FailureWindow,
			Delay:            cb.Delay,
		}
	}
	sender := delivery.NewClient(sink, deliveryCfg)

	// 2. Pipeline stages
	labels := cfg.Format.Labels
	formatter := format.New(cfg.Destination.ChannelID, maxLength, cfg.Format.Embed, format.Labels{
		Header: labels.Header,
		Text:   labels.Text,
		Reply:  labels.Reply,
		Quote:  labels.Quote,
		URL:    labels.URL,
	})

	includeReplies := cfg.Filter.IncludeReplies == nil || *cfg.Filter.IncludeReplies
	policy := filter.NewPolicy(cfg.Source.Follow, includeReplies)

	// 3. Upstream and supervisor
	source := upstream.NewClient(upstream.Config{
		URL:              cfg.Source.URL,
		BearerToken:      cfg.Source.BearerToken,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
	})

	sup := supervisor.New(supervisor.Config{
		Handle:                cfg.Source.Follow,
		BackoffFloor:          cfg.Stream.BackoffFloor,
		BackoffCeiling:        cfg.Stream.BackoffCeiling,
		ResetAfter:            valueOr(cfg.Stream.ResetAfter, 0),
		HeartbeatTimeout:      cfg.Stream.HeartbeatTimeout,
		Workers:               cfg.Delivery.Workers,
		QueueSize:             cfg.Delivery.QueueSize,
		ShutdownGrace:         cfg.Delivery.ShutdownGrace,
		DedupWindow:           cfg.Dedup.Window,
		DedupAcrossReconnects: cfg.Dedup.AcrossReconnects,
	}, source, policy, formatter, sender)

	// 4. Health
	var healthServer *health.Server
	if cfg.Server.Port > 0 {
		monitor := health.NewMonitor(cfg.Source.Follow, sup, cfg.Stream.HeartbeatTimeout)
		healthServer = health.NewServer(monitor, cfg.Server.Port)
	}

	return &Relay{
		cfg:          cfg,
		supervisor:   sup,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// valueOr returns *p, or def when the setting was left unset.
func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func newSink(cfg config.DestinationConfig, timeout time.Duration) (delivery.Sink, error) {
	switch cfg.Kind {
	case chat.KindDiscord:
		return chat.NewDiscord(chat.DiscordConfig{
			BaseURL: cfg.URL,
			Token:   cfg.Token,
			Timeout: timeout,
		}), nil
	case chat.KindMattermost:
		return chat.NewMattermost(chat.MattermostConfig{
			ServerURL: cfg.URL,
			Token:     cfg.Token,
			Timeout:   timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported destination kind %q", cfg.Kind)
	}
}

// Run relays until ctx is cancelled. It returns an error if the relay could
// not start, upstream rejected the credentials or the instance lock was
// lost.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Single-instance lock
	if r.cfg.Redis.URL != "" {
		release, err := r.acquireLock(ctx, cancel)
		if err != nil {
			return err
		}
		defer release()
	}

	// Health server
	if r.healthServer != nil {
		go func() {
			if err := r.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.log.Error("Health server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := r.healthServer.Stop(shutdownCtx); err != nil {
				r.log.Warn("Failed to stop health server", "error", err)
			}
		}()
	}

	r.log.Info("Relay started",
		"handle", r.cfg.Source.Follow,
		"destination", r.cfg.Destination.Kind,
		"channel_id", r.cfg.Destination.ChannelID,
	)

	if err := r.supervisor.Run(ctx); err != nil {
		return err
	}

	if cause := context.Cause(ctx); errors.Is(cause, redisclient.ErrLockLost) {
		return cause
	}

	r.log.Info("Relay stopped gracefully")
	return nil
}

func (r *Relay) acquireLock(ctx context.Context, cancel context.CancelCauseFunc) (func(), error) {
	client, err := redisclient.NewClient(r.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	lock, err := client.AcquireLock(ctx, r.cfg.Source.Follow, r.cfg.Redis.LockTTL)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to acquire relay lock: %w", err)
	}
	r.log.Info("Acquired relay lock", "handle", r.cfg.Source.Follow)

	keepCtx, stopKeep := context.WithCancel(ctx)
	go lock.Keep(keepCtx, func() { cancel(redisclient.ErrLockLost) })

	return func() {
		stopKeep()

		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()

		if err := lock.Release(releaseCtx); err != nil {
			r.log.Warn("Failed to release relay lock", "error", err)
		}
		if err := client.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}, nil
}
