// Package classify tags upstream items with their post kind.
package classify

import (
	"fmt"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

// Classify returns the ClassifiedItem for item. Precedence, first match wins:
// repost, quote, reply, original. An item that quotes while replying is a
// quote.
func Classify(item *domain.RawItem) (*domain.ClassifiedItem, error) {
	if err := Validate(item); err != nil {
		return nil, err
	}

	c := &domain.ClassifiedItem{Primary: item}

	switch {
	case item.RepostOf != nil:
		c.Kind = domain.KindRepost
		c.Secondary = item.RepostOf.Item
	case item.QuoteOf != nil:
		c.Kind = domain.KindQuote
		c.Secondary = item.QuoteOf.Item
	case item.IsReply():
		c.Kind = domain.KindReply
		c.ReplyTarget = item.InReplyToAuthor
	default:
		c.Kind = domain.KindOriginal
	}

	return c, nil
}

// Validate checks the fields every item needs. A repost may carry an empty
// body since its content lives in the reposted item.
func Validate(item *domain.RawItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", domain.ErrMalformedItem)
	}
	if item.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrMalformedItem)
	}
	if item.Author == "" {
		return fmt.Errorf("%w: item %s missing author", domain.ErrMalformedItem, item.ID)
	}
	if item.Body == "" && (item.RepostOf == nil || item.RepostOf.Item == nil) {
		return fmt.Errorf("%w: item %s missing body", domain.ErrMalformedItem, item.ID)
	}
	return nil
}
