// Package format renders classified items into outbound chat messages.
package format

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

// Labels name the parts of an embedded message.
type Labels struct {
	Header string
	Text   string
	Reply  string
	Quote  string
	URL    string
}

// Formatter turns ClassifiedItems into OutboundMessages. It holds no state
// between calls.
type Formatter struct {
	ChannelID string
	MaxLength int // in runes, 0 = unlimited
	Embed     bool
	Labels    Labels

	log *slog.Logger
}

// New creates a Formatter for the given destination channel.
func New(channelID string, maxLength int, embed bool, labels Labels) *Formatter {
	return &Formatter{
		ChannelID: channelID,
		MaxLength: maxLength,
		Embed:     embed,
		Labels:    labels,
		log:       slog.Default().With("component", "formatter"),
	}
}

// Format renders c. It never fails: a quote or repost without its
// referenced item is rendered as an original post.
func (f *Formatter) Format(c *domain.ClassifiedItem) *domain.OutboundMessage {
	p := c.Primary
	kind := c.Kind

	if (kind == domain.KindQuote || kind == domain.KindRepost) && c.Secondary == nil {
		f.log.Warn("Referenced item unavailable, rendering as original",
			"error", domain.ErrMissingReference,
			"kind", kind.String(),
			"item_id", p.ID,
			"permalink", p.Permalink,
		)
		kind = domain.KindOriginal
	}

	var text string
	switch kind {
	case domain.KindRepost:
		s := c.Secondary
		text = fmt.Sprintf("%s: RT @%s: %s (%s)", p.Author, s.Author, s.Body, p.Permalink)
	case domain.KindQuote:
		s := c.Secondary
		text = fmt.Sprintf("%s: %s (%s)\n  ↳ %s: %s", p.Author, p.Body, p.Permalink, s.Author, s.Body)
	default:
		// Replies already carry the @mention in the body.
		text = fmt.Sprintf("%s: %s (%s)", p.Author, p.Body, p.Permalink)
	}

	msg := &domain.OutboundMessage{
		ChannelID: f.ChannelID,
		Text:      Truncate(text, f.MaxLength),
		ItemID:    p.ID,
		Permalink: p.Permalink,
	}

	if f.Embed {
		msg.Embed = f.embed(c, kind)
	}

	return msg
}

func (f *Formatter) embed(c *domain.ClassifiedItem, kind domain.Kind) *domain.Embed {
	p := c.Primary
	e := &domain.Embed{
		Title:     f.Labels.Header,
		Author:    p.Author,
		URL:       p.Permalink,
		KindLabel: kind.String(),
	}

	switch kind {
	case domain.KindRepost:
		e.Fields = append(e.Fields, domain.EmbedField{
			Name:  f.Labels.Text,
			Value: fmt.Sprintf("RT @%s: %s", c.Secondary.Author, c.Secondary.Body),
		})
	case domain.KindQuote:
		e.Fields = append(e.Fields,
			domain.EmbedField{Name: f.Labels.Text, Value: p.Body},
			domain.EmbedField{
				Name:  f.Labels.Quote,
				Value: fmt.Sprintf("%s: %s", c.Secondary.Author, c.Secondary.Body),
			},
		)
	case domain.KindReply:
		e.Fields = append(e.Fields, domain.EmbedField{Name: f.Labels.Text, Value: p.Body})
		if c.ReplyTarget != "" {
			e.Fields = append(e.Fields, domain.EmbedField{Name: f.Labels.Reply, Value: "@" + c.ReplyTarget})
		}
	default:
		e.Fields = append(e.Fields, domain.EmbedField{Name: f.Labels.Text, Value: p.Body})
	}

	if p.Permalink != "" {
		e.Fields = append(e.Fields, domain.EmbedField{Name: f.Labels.URL, Value: p.Permalink})
	}

	return e
}

// Truncate cuts s to at most max runes, ending with domain.TruncationMarker
// when anything was removed. max <= 0 disables the limit.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	marker := []rune(domain.TruncationMarker)
	if max <= len(marker) {
		return string(marker[:max])
	}

	runes := []rune(s)
	return string(runes[:max-len(marker)]) + domain.TruncationMarker
}
