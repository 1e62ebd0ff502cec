package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/chatproto"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one authenticated socket. Frames are queued through Enqueue and
// drained by the write pump; the Send channel is never written to directly.
type Client struct {
	Identity *auth.Identity
	Send     chan []byte

	mu     sync.Mutex
	closed bool

	conn   Conn
	logger zerolog.Logger
}

func newClient(identity *auth.Identity, conn Conn, logger zerolog.Logger) *Client {
	return &Client{
		Identity: identity,
		Send:     make(chan []byte, 256),
		conn:     conn,
		logger:   logger,
	}
}

// Enqueue queues a frame for delivery without blocking. A full buffer drops
// the frame rather than stalling the writer for everyone else. Returns false
// once the client has shut down: a registry lookup can briefly hand out a
// client whose read pump already exited, and that handle must stay safe to
// enqueue on.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		c.logger.Warn().
			Str("user", c.Identity.UserID.String()).
			Msg("send buffer full, dropping frame")
		return false
	}
}

// closeSend marks the client closed and closes the send queue exactly once.
// It holds the same lock as Enqueue, so no frame can race onto the closed
// channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// EnqueueEvent encodes an envelope and queues it.
func (c *Client) EnqueueEvent(event string, payload interface{}) bool {
	data, err := chatproto.Encode(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("encode event")
		return false
	}
	return c.Enqueue(data)
}
