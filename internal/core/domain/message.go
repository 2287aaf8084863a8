package domain

// TruncationMarker is appended to text cut down to the destination limit.
const TruncationMarker = "… [truncated]"

// OutboundMessage is a rendered message ready for the destination.
type OutboundMessage struct {
	ChannelID string
	Text      string
	Embed     *Embed

	// ItemID and Permalink identify the source item for logging.
	ItemID    string
	Permalink string
}

// Embed is optional rich metadata a destination may render next to Text.
type Embed struct {
	Title     string
	Author    string
	URL       string
	KindLabel string
	Fields    []EmbedField
}

// EmbedField is a titled block inside an Embed.
type EmbedField struct {
	Name  string
	Value string
}
