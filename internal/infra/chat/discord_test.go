package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

const testAttemptID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func testMessage() *domain.OutboundMessage {
	return &domain.OutboundMessage{
		ChannelID: "123",
		Text:      "bombsimon: hello (https://twitter.com/bombsimon/status/1)",
		ItemID:    "1",
		Permalink: "https://twitter.com/bombsimon/status/1",
	}
}

func TestDiscord_Post(t *testing.T) {
	var got discordMessage
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"9001","channel_id":"123"}`))
	}))
	defer srv.Close()

	sink := NewDiscord(DiscordConfig{BaseURL: srv.URL, Token: "bot-token"})

	id, err := sink.Post(context.Background(), testMessage(), testAttemptID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if id != "9001" {
		t.Errorf("id = %q", id)
	}
	if gotAuth != "Bot bot-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/channels/123/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if got.Content != testMessage().Text || len(got.Embeds) != 0 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if len(got.Nonce) != discordMaxNonce || !got.EnforceNonce {
		t.Errorf("unexpected nonce %q (enforce %v)", got.Nonce, got.EnforceNonce)
	}
}

func TestDiscord_Embed(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	msg := testMessage()
	msg.Embed = &domain.Embed{
		Title:     "New post",
		Author:    "bombsimon",
		URL:       msg.Permalink,
		KindLabel: "quote",
		Fields: []domain.EmbedField{
			{Name: "Text", Value: strings.Repeat("x", 2000)},
			{Name: "Quoting", Value: "rustlang: hi"},
			{Name: "Empty", Value: ""},
		},
	}

	if _, err := NewDiscord(DiscordConfig{BaseURL: srv.URL}).Post(context.Background(), msg, testAttemptID); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	if got.Content != "" || len(got.Embeds) != 1 {
		t.Fatalf("expected embed only, got %+v", got)
	}
	e := got.Embeds[0]
	if e.Title != "New post" || e.URL != msg.Permalink || e.Author == nil || e.Author.Name != "@bombsimon" {
		t.Errorf("unexpected embed: %+v", e)
	}
	if e.Footer == nil || e.Footer.Text != "quote" {
		t.Errorf("unexpected footer: %+v", e.Footer)
	}
	if len(e.Fields) != 2 {
		t.Fatalf("expected empty field to be skipped, got %d fields", len(e.Fields))
	}
	if n := utf8.RuneCountInString(e.Fields[0].Value); n != discordMaxField {
		t.Errorf("field length = %d, want %d", n, discordMaxField)
	}
	if !strings.HasSuffix(e.Fields[0].Value, domain.TruncationMarker) {
		t.Error("long field should carry the truncation marker")
	}
}

func TestDiscord_ErrorClassification(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		header         map[string]string
		body           string
		wantClass      domain.DeliveryClass
		wantRetryAfter time.Duration
	}{
		{"rate limited body", 429, nil, `{"message":"You are being rate limited.","retry_after":1.5,"global":false}`, domain.DeliveryRateLimited, 1500 * time.Millisecond},
		{"rate limited header", 429, map[string]string{"Retry-After": "3"}, `{}`, domain.DeliveryRateLimited, 3 * time.Second},
		{"rate limited no hint", 429, nil, `{}`, domain.DeliveryTransient, 0},
		{"server error", 502, nil, `bad gateway`, domain.DeliveryTransient, 0},
		{"unauthorized", 401, nil, `{"message":"401: Unauthorized","code":0}`, domain.DeliveryPermanent, 0},
		{"forbidden", 403, nil, `{"message":"Missing Access","code":50001}`, domain.DeliveryPermanent, 0},
		{"unknown channel", 404, nil, `{"message":"Unknown Channel","code":10003}`, domain.DeliveryPermanent, 0},
		{"bad request", 400, nil, `{"message":"Invalid Form Body","code":50035}`, domain.DeliveryPermanent, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewDiscord(DiscordConfig{BaseURL: srv.URL}).Post(context.Background(), testMessage(), testAttemptID)

			var de *domain.DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("expected DeliveryError, got %v", err)
			}
			if de.Class != tt.wantClass {
				t.Errorf("class = %v, want %v", de.Class, tt.wantClass)
			}
			if de.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", de.StatusCode, tt.status)
			}
			if de.RetryAfter != tt.wantRetryAfter {
				t.Errorf("retry after = %v, want %v", de.RetryAfter, tt.wantRetryAfter)
			}
		})
	}
}

func TestDiscord_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewDiscord(DiscordConfig{BaseURL: url}).Post(context.Background(), testMessage(), testAttemptID)
	if !errors.Is(err, domain.ErrTransientDelivery) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
