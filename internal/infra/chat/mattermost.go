package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

const mattermostMaxRunes = model.PostMessageMaxRunesV2

// MattermostConfig holds the Mattermost settings.
type MattermostConfig struct {
	ServerURL string
	Token     string // bot or personal access token
	Timeout   time.Duration
}

// Mattermost posts messages with the v4 REST API.
type Mattermost struct {
	client *model.Client4
	log    *slog.Logger
}

// NewMattermost creates a Mattermost sink.
func NewMattermost(cfg MattermostConfig) *Mattermost {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := model.NewAPIv4Client(cfg.ServerURL)
	client.SetToken(cfg.Token)
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Mattermost{
		client: client,
		log:    slog.Default().With("component", "mattermost"),
	}
}

func (m *Mattermost) Name() string { return KindMattermost }

// Post creates a post in msg.ChannelID. attemptID becomes the pending post
// id, which the server uses to deduplicate retried requests.
func (m *Mattermost) Post(ctx context.Context, msg *domain.OutboundMessage, attemptID string) (string, error) {
	post := &model.Post{
		ChannelId:     msg.ChannelID,
		Message:       msg.Text,
		PendingPostId: attemptID,
	}
	if msg.Embed != nil {
		post.Message = ""
		post.AddProp(model.PostPropsAttachments, []*model.SlackAttachment{toAttachment(msg)})
	}

	created, resp, err := m.client.CreatePost(ctx, post)
	if err != nil {
		return "", m.classify(resp, err)
	}

	return created.Id, nil
}

func (m *Mattermost) classify(resp *model.Response, err error) error {
	statusCode := 0
	var header http.Header
	if resp != nil {
		statusCode = resp.StatusCode
		header = resp.Header
	}

	var appErr *model.AppError
	if statusCode == 0 && errors.As(err, &appErr) {
		statusCode = appErr.StatusCode
	}

	// No status means the request never got an answer.
	if statusCode == 0 {
		return domain.TransientError(0, fmt.Errorf("create post: %w", err))
	}

	var retryAfter time.Duration
	if statusCode == http.StatusTooManyRequests && header != nil {
		retryAfter = retryAfterHeader(header, time.Now())
		m.log.Debug("Rate limited by Mattermost", "retry_after", retryAfter)
	}

	return classifyStatus(statusCode, retryAfter, fmt.Errorf("create post: %w", err))
}

func toAttachment(msg *domain.OutboundMessage) *model.SlackAttachment {
	e := msg.Embed
	attachment := &model.SlackAttachment{
		Fallback:   msg.Text,
		AuthorName: "@" + e.Author,
		Title:      e.Title,
		TitleLink:  e.URL,
		Footer:     e.KindLabel,
	}
	for _, f := range e.Fields {
		if f.Value == "" {
			continue
		}
		attachment.Fields = append(attachment.Fields, &model.SlackAttachmentField{
			Title: f.Name,
			Value: f.Value,
		})
	}
	return attachment
}
