// Package upstream connects to the activity stream over a websocket.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/core/logging"
	"github.com/bombsimon/tweetrelay/internal/relay/supervisor"
)

const writeWait = 10 * time.Second

// Config holds the upstream connection settings.
type Config struct {
	URL              string
	BearerToken      string
	HandshakeTimeout time.Duration
}

// Client dials the upstream stream. It is safe for concurrent use.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewClient creates a new upstream client.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: slog.Default().With("component", "upstream"),
	}
}

// Connect opens a stream of handle's activity. A 401 or 403 handshake
// response is reported as domain.ErrAuthentication; every other failure as
// domain.ErrTransientConnection.
func (c *Client) Connect(ctx context.Context, handle string) (supervisor.Stream, error) {
	wsURL, err := c.buildURL(handle)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if c.cfg.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("upstream handshake rejected (status: %d): %w", resp.StatusCode, domain.ErrAuthentication)
			}
			return nil, fmt.Errorf("upstream handshake failed (status: %d): %w: %w", resp.StatusCode, domain.ErrTransientConnection, err)
		}
		return nil, fmt.Errorf("failed to connect to upstream: %w: %w", domain.ErrTransientConnection, err)
	}

	s := &Stream{conn: conn, log: c.log}
	conn.SetPingHandler(s.handlePing)

	c.log.Debug("Connected to upstream", "url", wsURL)
	return s, nil
}

// buildURL converts an http(s) base URL to ws(s) and adds the follow
// parameter.
func (c *Client) buildURL(handle string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	q.Set("follow", handle)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Stream is one open upstream connection. Next must not be called
// concurrently.
type Stream struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// Next reads the next frame. The read deadline follows ctx; once ctx is done
// the pending read is interrupted and ctx.Err() is returned. After any error
// other than domain.ErrMalformedItem the stream is unusable.
func (s *Stream) Next(ctx context.Context) (supervisor.Frame, error) {
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return supervisor.Frame{}, fmt.Errorf("set read deadline: %w: %w", domain.ErrTransientConnection, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return supervisor.Frame{}, ctxErr
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && !deadline.IsZero() {
			return supervisor.Frame{}, context.DeadlineExceeded
		}

		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return supervisor.Frame{}, fmt.Errorf("upstream closed stream: %w", io.EOF)
		}

		return supervisor.Frame{}, fmt.Errorf("read upstream frame: %w: %w", domain.ErrTransientConnection, err)
	}

	logging.Trace(s.log, "Received upstream frame", "bytes", len(data))

	return decodeFrame(data)
}

// Close sends a close frame and closes the connection.
func (s *Stream) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return s.conn.Close()
}

func (s *Stream) handlePing(data string) error {
	logging.Trace(s.log, "Received ping")

	err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
