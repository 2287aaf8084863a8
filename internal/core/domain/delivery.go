package domain

// DeliveryAttempt tracks one message through its retry sequence.
type DeliveryAttempt struct {
	ID       string
	Message  *OutboundMessage
	Attempts int
	LastErr  error
}

// Ack is the destination's confirmation that a message was accepted.
type Ack struct {
	MessageID string
	ChannelID string
	Attempts  int
}
