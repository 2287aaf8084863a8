// Package filter decides which classified items are forwarded.
package filter

import (
	"log/slog"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
)

// Policy admits everything the tracked account posts and every reply
// addressed to it.
type Policy struct {
	tracked        *HandleSet
	includeReplies bool
	log            *slog.Logger
}

// NewPolicy creates a Policy for trackedHandle. With includeReplies unset,
// replies written by the tracked account and replies addressed to it are
// both rejected.
func NewPolicy(trackedHandle string, includeReplies bool) *Policy {
	return &Policy{
		tracked:        NewHandleSet(trackedHandle),
		includeReplies: includeReplies,
		log:            slog.Default().With("component", "filter"),
	}
}

// Admit reports whether c should be forwarded. Rejections are only logged
// at trace level since the upstream firehose is unbounded.
func (p *Policy) Admit(c *domain.ClassifiedItem) bool {
	if c.Kind == domain.KindReply && !p.includeReplies {
		logging.Trace(p.log, "Rejected reply, replies disabled", "item_id", c.Primary.ID)
		return false
	}

	if p.tracked.Contains(c.Primary.Author) {
		return true
	}
	if c.Kind == domain.KindReply && p.tracked.Contains(c.ReplyTarget) {
		return true
	}

	logging.Trace(p.log, "Item matched stream but not tracked account, not forwarding",
		"item_id", c.Primary.ID,
		"author", c.Primary.Author,
	)
	return false
}
