package config

import (
	"time"

	redisclient "github.com/bombsimon/tweetrelay/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Source      SourceConfig       `yaml:"source"`
	Destination DestinationConfig  `yaml:"destination"`
	Delivery    DeliveryConfig     `yaml:"delivery"`
	Stream      StreamConfig       `yaml:"stream"`
	Format      FormatConfig       `yaml:"format"`
	Filter      FilterConfig       `yaml:"filter"`
	Dedup       DedupConfig        `yaml:"dedup"`
	Server      ServerConfig       `yaml:"server"`
	Redis       redisclient.Config `yaml:"redis"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// SourceConfig holds the upstream activity stream settings.
type SourceConfig struct {
	URL         string `yaml:"url"`
	BearerToken string `yaml:"bearer_token"`
	Follow      string `yaml:"follow"` // tracked handle
}

// DestinationConfig holds the chat system settings.
type DestinationConfig struct {
	Kind      string `yaml:"kind"` // mattermost, discord
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	MaxLength int    `yaml:"max_length"` // 0 = destination default
}

// DeliveryConfig controls per-message retries and the delivery workers.
type DeliveryConfig struct {
	MaxAttempts    int                  `yaml:"max_attempts"`
	InitialDelay   time.Duration        `yaml:"initial_delay"`
	MaxDelay       time.Duration        `yaml:"max_delay"`
	Jitter         *float64             `yaml:"jitter"` // fraction of the delay, 0..1; 0 disables
	Workers        int                  `yaml:"workers"`
	QueueSize      int                  `yaml:"queue_size"`
	ShutdownGrace  time.Duration        `yaml:"shutdown_grace"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the optional breaker in front of the sink.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint          `yaml:"failure_threshold"`
	FailureWindow    uint          `yaml:"failure_window"`
	Delay            time.Duration `yaml:"delay"`
}

// StreamConfig holds reconnect tunables.
type StreamConfig struct {
	BackoffFloor     time.Duration  `yaml:"backoff_floor"`
	BackoffCeiling   time.Duration  `yaml:"backoff_ceiling"`
	ResetAfter       *time.Duration `yaml:"reset_after"` // 0 never clears the failure count
	HeartbeatTimeout time.Duration  `yaml:"heartbeat_timeout"`
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout"`
}

// FormatConfig controls message rendering.
type FormatConfig struct {
	Embed  bool              `yaml:"embed"`
	Labels EmbedLabelsConfig `yaml:"labels"`
}

// EmbedLabelsConfig names the parts of an embedded message.
type EmbedLabelsConfig struct {
	Header string `yaml:"header"`
	Text   string `yaml:"text"`
	Reply  string `yaml:"reply"`
	Quote  string `yaml:"quote"`
	URL    string `yaml:"url"`
}

// FilterConfig controls which classified items are forwarded.
type FilterConfig struct {
	IncludeReplies *bool `yaml:"include_replies"`
}

// DedupConfig sizes the recently-forwarded id window.
type DedupConfig struct {
	Window           int  `yaml:"window"`
	AcrossReconnects bool `yaml:"across_reconnects"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health/metrics server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // trace, debug, info, warn, error
}
