package supervisor

import (
	"context"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
)

// Source opens connections to the upstream activity stream.
type Source interface {
	// Connect performs the handshake for handle. An error wrapping
	// domain.ErrAuthentication is permanent; anything else is retried.
	Connect(ctx context.Context, handle string) (Stream, error)
}

// Stream is one open upstream connection.
type Stream interface {
	// Next blocks until the next frame arrives or ctx is done. An error
	// wrapping domain.ErrMalformedItem concerns a single frame only and the
	// stream stays usable.
	Next(ctx context.Context) (Frame, error)

	Close() error
}

// Frame is a single message read from the stream.
type Frame struct {
	Item      *domain.RawItem
	KeepAlive bool
}

// Sender delivers formatted messages. *delivery.Client implements it.
type Sender interface {
	Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.Ack, error)
}
