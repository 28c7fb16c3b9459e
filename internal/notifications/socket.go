package notifications

import (
	"sync"
	"time"

	"carkey/internal/middleware"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Frames from the browser are only pongs and close frames.
	readLimit = 512

	sendBuffer = 64
)

// Client is one open notification socket. Sockets are push-only: frames the
// peer sends are read and discarded so pongs and close frames are seen.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint

	// Send is drained by the write loop. It is closed when the client leaves
	// the hub, after which the write loop says goodbye and exits.
	Send chan []byte

	mu     sync.Mutex
	closed bool
	reason string
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{hub: hub, conn: conn, userID: userID, Send: make(chan []byte, sendBuffer)}
}

// TrySend queues msg without blocking. It reports false when the queue is
// full or already closed.
func (c *Client) TrySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.reason = reason
	close(c.Send)
	return true
}

func (c *Client) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Serve runs the socket until either side hangs up, then removes the client
// from its hub.
func (c *Client) Serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	extend := func() { _ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				middleware.Logger.Debug("notification socket closed", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, c.closeReason()))
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
