package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/relay/format"
)

const (
	discordAPI          = "https://discord.com/api/v10"
	discordMaxContent   = 2000
	discordMaxFieldName = 256
	discordMaxField     = 1024
	discordMaxNonce     = 25
)

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	BaseURL string // defaults to the public API
	Token   string
	Timeout time.Duration
}

// Discord posts messages through the Discord REST API as a bot user.
type Discord struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewDiscord creates a Discord sink.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.BaseURL == "" {
		cfg.BaseURL = discordAPI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Discord{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default().With("component", "discord"),
	}
}

func (d *Discord) Name() string { return KindDiscord }

type discordMessage struct {
	Content      string         `json:"content,omitempty"`
	Embeds       []discordEmbed `json:"embeds,omitempty"`
	Nonce        string         `json:"nonce,omitempty"`
	EnforceNonce bool           `json:"enforce_nonce,omitempty"`
}

type discordEmbed struct {
	Title  string              `json:"title,omitempty"`
	URL    string              `json:"url,omitempty"`
	Author *discordEmbedAuthor `json:"author,omitempty"`
	Fields []discordEmbedField `json:"fields,omitempty"`
	Footer *discordEmbedFooter `json:"footer,omitempty"`
}

type discordEmbedAuthor struct {
	Name string `json:"name"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordRateLimit struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Post creates a message in msg.ChannelID. attemptID is sent as an enforced
// nonce so a retried request that already succeeded is not posted twice.
func (d *Discord) Post(ctx context.Context, msg *domain.OutboundMessage, attemptID string) (string, error) {
	payload := discordMessage{
		Content: format.Truncate(msg.Text, discordMaxContent),
	}
	if msg.Embed != nil {
		payload.Content = ""
		payload.Embeds = []discordEmbed{toDiscordEmbed(msg.Embed)}
	}
	if nonce := discordNonce(attemptID); nonce != "" {
		payload.Nonce = nonce
		payload.EnforceNonce = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", domain.PermanentError(0, fmt.Errorf("marshal message: %w", err))
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages", d.baseURL, msg.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.PermanentError(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", domain.TransientError(0, fmt.Errorf("post message: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.TransientError(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := retryAfterHeader(resp.Header, time.Now())
		var rl discordRateLimit
		if json.Unmarshal(respBody, &rl) == nil && rl.RetryAfter > 0 {
			retryAfter = time.Duration(rl.RetryAfter * float64(time.Second))
		}
		d.log.Debug("Rate limited by Discord", "retry_after", retryAfter, "global", rl.Global)
		return "", classifyStatus(resp.StatusCode, retryAfter, errors.New("rate limited"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, 0, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", domain.TransientError(resp.StatusCode, fmt.Errorf("parse response: %w", err))
	}

	return created.ID, nil
}

func toDiscordEmbed(e *domain.Embed) discordEmbed {
	out := discordEmbed{
		Title: e.Title,
		URL:   e.URL,
	}
	if e.Author != "" {
		out.Author = &discordEmbedAuthor{Name: "@" + e.Author}
	}
	if e.KindLabel != "" {
		out.Footer = &discordEmbedFooter{Text: e.KindLabel}
	}
	for _, f := range e.Fields {
		if f.Value == "" {
			continue
		}
		out.Fields = append(out.Fields, discordEmbedField{
			Name:  format.Truncate(f.Name, discordMaxFieldName),
			Value: format.Truncate(f.Value, discordMaxField),
		})
	}
	return out
}

func discordNonce(attemptID string) string {
	nonce := strings.ReplaceAll(attemptID, "-", "")
	if len(nonce) > discordMaxNonce {
		nonce = nonce[:discordMaxNonce]
	}
	return nonce
}
