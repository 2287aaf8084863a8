package domain

import "time"

// RawItem is one unit of activity as received from the upstream stream.
// It is never modified after decoding.
type RawItem struct {
	ID              string
	Author          string
	Body            string
	InReplyToAuthor string
	InReplyToID     string
	QuoteOf         *ItemRef
	RepostOf        *ItemRef
	CreatedAt       time.Time
	Permalink       string
}

// ItemRef points at another item. Item is nil when upstream only sent the id.
type ItemRef struct {
	ID   string
	Item *RawItem
}

// IsReply reports whether the item has an in-reply-to target.
func (r *RawItem) IsReply() bool {
	return r.InReplyToAuthor != "" || r.InReplyToID != ""
}

// Kind is the classification of an item.
type Kind int

const (
	KindOriginal Kind = iota
	KindReply
	KindQuote
	KindRepost
)

func (k Kind) String() string {
	switch k {
	case KindOriginal:
		return "original"
	case KindReply:
		return "reply"
	case KindQuote:
		return "quote"
	case KindRepost:
		return "repost"
	default:
		return "unknown"
	}
}

// ClassifiedItem is derived from a RawItem and owned by the pipeline
// invocation that created it.
type ClassifiedItem struct {
	Kind        Kind
	Primary     *RawItem
	Secondary   *RawItem // quoted or reposted item, nil if upstream omitted it
	ReplyTarget string   // set for KindReply only
}
