package notifications

import (
	"context"
	"errors"
	"sync"

	"carkey/internal/middleware"
	"carkey/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxSocketsPerUser = 12
	maxSockets        = 10000
)

// Close reasons sent to the peer.
const (
	reasonShutdown = "server shutting down"
	reasonSlow     = "too slow, reconnect and reload notifications"
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub tracks the notification sockets of this instance by user.
type Hub struct {
	mu       sync.RWMutex
	sockets  map[uint][]*Client
	total    int
	draining bool
}

func NewHub() *Hub {
	return &Hub{sockets: make(map[uint][]*Client)}
}

// Name labels the hub in logs and metrics.
func (h *Hub) Name() string { return "notifications" }

// Register adds a socket for userID. conn may be nil in tests that only
// exercise fan-out.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.draining, h.total >= maxSockets:
		return nil, ErrServerFull
	case len(h.sockets[userID]) >= maxSocketsPerUser:
		return nil, ErrUserFull
	}

	c := newClient(h, conn, userID)
	h.sockets[userID] = append(h.sockets[userID], c)
	h.total++
	observability.WebSocketConnectionsTotal.Inc()
	return c, nil
}

// Remove drops c from the hub and closes its queue. Repeated calls are no-ops.
func (h *Hub) Remove(c *Client) {
	h.detach(c, "")
}

func (h *Hub) detach(c *Client, reason string) {
	h.mu.Lock()
	list := h.sockets[c.userID]
	found := false
	for i, other := range list {
		if other == c {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			found = true
			break
		}
	}
	if found {
		h.total--
		observability.WebSocketConnectionsTotal.Dec()
		if len(list) == 0 {
			delete(h.sockets, c.userID)
		} else {
			h.sockets[c.userID] = list
		}
	}
	h.mu.Unlock()

	c.close(reason)
}

// ConnectionCount reports the open sockets of userID.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets[userID])
}

// Broadcast sends message to every socket of userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	targets := append([]*Client(nil), h.sockets[userID]...)
	h.mu.RUnlock()
	h.deliver(targets, []byte(message))
}

// BroadcastAll sends message to every socket on this instance.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for _, list := range h.sockets {
		targets = append(targets, list...)
	}
	h.mu.RUnlock()
	h.deliver(targets, []byte(message))
}

// deliver evicts sockets whose queue is full. The client reloads its inbox
// over HTTP after reconnecting, so nothing is lost for good.
func (h *Hub) deliver(targets []*Client, data []byte) {
	for _, c := range targets {
		if c.TrySend(data) {
			continue
		}
		observability.WebSocketBackpressureDrops.WithLabelValues(h.Name(), "evicted").Inc()
		middleware.Logger.Warn("evicting slow notification socket", "user_id", c.userID)
		h.detach(c, reasonSlow)
	}
}

// StartWiring subscribes to the Notifier's Redis channels and forwards each
// payload to the matching sockets. Without Redis, publishes reach the hub
// directly.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	n.WithLocalFallback(h)
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		userID, ok := parseUserChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid notification channel", "channel", channel)
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every queue so write loops send a close frame, and refuses
// new sockets.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return nil
	}
	h.draining = true
	all := h.sockets
	h.sockets = make(map[uint][]*Client)
	observability.WebSocketConnectionsTotal.Sub(float64(h.total))
	h.total = 0
	h.mu.Unlock()

	closed := 0
	for _, list := range all {
		for _, c := range list {
			if c.close(reasonShutdown) {
				closed++
			}
		}
	}
	middleware.Logger.Info("notification hub drained", "sockets", closed)
	return nil
}
