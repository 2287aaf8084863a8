package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every unset tunable.
func (c *AppConfig) ApplyDefaults() {
	c.Source.Follow = strings.TrimPrefix(strings.TrimSpace(c.Source.Follow), "@")

	if c.Destination.Kind == "" {
		c.Destination.Kind = "discord"
	}

	d := &c.Delivery
	if d.MaxAttempts == 0 {
		d.MaxAttempts = 5
	}
	if d.InitialDelay == 0 {
		d.InitialDelay = 1 * time.Second
	}
	if d.MaxDelay == 0 {
		d.MaxDelay = 60 * time.Second
	}
	if d.Jitter == nil {
		jitter := 0.2
		d.Jitter = &jitter
	}
	if d.Workers == 0 {
		d.Workers = 4
	}
	if d.QueueSize == 0 {
		d.QueueSize = 64
	}
	if d.ShutdownGrace == 0 {
		d.ShutdownGrace = 10 * time.Second
	}
	if d.RequestTimeout == 0 {
		d.RequestTimeout = 15 * time.Second
	}
	if d.CircuitBreaker.FailureThreshold == 0 {
		d.CircuitBreaker.FailureThreshold = 5
	}
	if d.CircuitBreaker.FailureWindow == 0 {
		d.CircuitBreaker.FailureWindow = 10
	}
	if d.CircuitBreaker.Delay == 0 {
		d.CircuitBreaker.Delay = 30 * time.Second
	}

	s := &c.Stream
	if s.BackoffFloor == 0 {
		s.BackoffFloor = 1 * time.Second
	}
	if s.BackoffCeiling == 0 {
		s.BackoffCeiling = 5 * time.Minute
	}
	if s.ResetAfter == nil {
		resetAfter := 1 * time.Minute
		s.ResetAfter = &resetAfter
	}
	if s.HeartbeatTimeout == 0 {
		s.HeartbeatTimeout = 90 * time.Second
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 30 * time.Second
	}

	l := &c.Format.Labels
	if l.Header == "" {
		l.Header = "New post"
	}
	if l.Text == "" {
		l.Text = "Text"
	}
	if l.Reply == "" {
		l.Reply = "In reply to"
	}
	if l.Quote == "" {
		l.Quote = "Quoting"
	}
	if l.URL == "" {
		l.URL = "Link"
	}

	if c.Filter.IncludeReplies == nil {
		includeReplies := true
		c.Filter.IncludeReplies = &includeReplies
	}

	if c.Dedup.Window == 0 {
		c.Dedup.Window = 1024
	}

	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every missing or inconsistent setting.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Source.URL == "" {
		errs = append(errs, errors.New("source.url is required"))
	}
	if c.Source.Follow == "" {
		errs = append(errs, errors.New("source.follow is required"))
	}

	switch c.Destination.Kind {
	case "discord", "mattermost":
	default:
		errs = append(errs, fmt.Errorf("destination.kind %q is not supported", c.Destination.Kind))
	}
	if c.Destination.Kind == "mattermost" && c.Destination.URL == "" {
		errs = append(errs, errors.New("destination.url is required for mattermost"))
	}
	if c.Destination.Token == "" {
		errs = append(errs, errors.New("destination.token is required"))
	}
	if c.Destination.ChannelID == "" {
		errs = append(errs, errors.New("destination.channel_id is required"))
	}
	if c.Destination.MaxLength < 0 {
		errs = append(errs, errors.New("destination.max_length must not be negative"))
	}

	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, errors.New("delivery.max_attempts must be at least 1"))
	}
	if c.Delivery.MaxDelay < c.Delivery.InitialDelay {
		errs = append(errs, errors.New("delivery.max_delay must not be below delivery.initial_delay"))
	}
	if j := c.Delivery.Jitter; j != nil && (*j < 0 || *j >= 1) {
		errs = append(errs, errors.New("delivery.jitter must be in [0, 1)"))
	}
	if c.Delivery.Workers < 1 || c.Delivery.QueueSize < 1 {
		errs = append(errs, errors.New("delivery.workers and delivery.queue_size must be positive"))
	}

	if r := c.Stream.ResetAfter; r != nil && *r < 0 {
		errs = append(errs, errors.New("stream.reset_after must not be negative"))
	}
	if c.Stream.BackoffCeiling < c.Stream.BackoffFloor {
		errs = append(errs, errors.New("stream.backoff_ceiling must not be below stream.backoff_floor"))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}
