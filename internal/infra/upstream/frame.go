package upstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/relay/supervisor"
)

const (
	frameItem      = "item"
	frameKeepAlive = "keepalive"

	permalinkFormat = "https://twitter.com/%s/status/%s"
)

type wireFrame struct {
	Type string      `json:"type"`
	Item *wireStatus `json:"item"`
}

// wireStatus is the classic status payload.
type wireStatus struct {
	IDStr         string `json:"id_str"`
	Text          string `json:"text"`
	FullText      string `json:"full_text"`
	ExtendedTweet *struct {
		FullText string `json:"full_text"`
	} `json:"extended_tweet"`
	User struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	InReplyToScreenName  string      `json:"in_reply_to_screen_name"`
	InReplyToStatusIDStr string      `json:"in_reply_to_status_id_str"`
	QuotedStatus         *wireStatus `json:"quoted_status"`
	QuotedStatusIDStr    string      `json:"quoted_status_id_str"`
	RetweetedStatus      *wireStatus `json:"retweeted_status"`
	CreatedAt            string      `json:"created_at"`
	Permalink            string      `json:"permalink"`
}

// decodeFrame parses one websocket message. Errors wrap
// domain.ErrMalformedItem and only concern this frame.
func decodeFrame(data []byte) (supervisor.Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return supervisor.Frame{}, fmt.Errorf("decode frame: %w: %v", domain.ErrMalformedItem, err)
	}

	switch wf.Type {
	case frameKeepAlive:
		return supervisor.Frame{KeepAlive: true}, nil
	case frameItem:
		if wf.Item == nil {
			return supervisor.Frame{}, fmt.Errorf("item frame without payload: %w", domain.ErrMalformedItem)
		}
		return supervisor.Frame{Item: toRawItem(wf.Item)}, nil
	default:
		return supervisor.Frame{}, fmt.Errorf("unknown frame type %q: %w", wf.Type, domain.ErrMalformedItem)
	}
}

func toRawItem(ws *wireStatus) *domain.RawItem {
	item := &domain.RawItem{
		ID:              ws.IDStr,
		Author:          ws.User.ScreenName,
		Body:            ws.body(),
		InReplyToAuthor: ws.InReplyToScreenName,
		InReplyToID:     ws.InReplyToStatusIDStr,
		Permalink:       ws.Permalink,
	}

	if item.Permalink == "" && item.Author != "" && item.ID != "" {
		item.Permalink = fmt.Sprintf(permalinkFormat, item.Author, item.ID)
	}

	// Twitter's created_at layout.
	if t, err := time.Parse(time.RubyDate, ws.CreatedAt); err == nil {
		item.CreatedAt = t
	}

	if ws.RetweetedStatus != nil {
		item.RepostOf = &domain.ItemRef{ID: ws.RetweetedStatus.IDStr, Item: toRawItem(ws.RetweetedStatus)}
	}

	switch {
	case ws.QuotedStatus != nil:
		item.QuoteOf = &domain.ItemRef{ID: ws.QuotedStatus.IDStr, Item: toRawItem(ws.QuotedStatus)}
	case ws.QuotedStatusIDStr != "":
		item.QuoteOf = &domain.ItemRef{ID: ws.QuotedStatusIDStr}
	}

	return item
}

func (ws *wireStatus) body() string {
	if ws.ExtendedTweet != nil && ws.ExtendedTweet.FullText != "" {
		return ws.ExtendedTweet.FullText
	}
	if ws.FullText != "" {
		return ws.FullText
	}
	return ws.Text
}
