package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.Send:
		return string(msg)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(2, nil)
	require.NoError(t, err)

	hub.Broadcast(1, "for one")
	assert.Equal(t, "for one", receive(t, a))
	assert.Empty(t, b.Send)

	hub.BroadcastAll("everyone")
	assert.Equal(t, "everyone", receive(t, a))
	assert.Equal(t, "everyone", receive(t, b))

	hub.Remove(a)
	hub.Remove(a)
	assert.Zero(t, hub.ConnectionCount(1))
	_, open := <-a.Send
	assert.False(t, open, "send queue closes on remove")
	assert.False(t, a.TrySend([]byte("late")))

	hub.Broadcast(1, "nobody listening")
	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	_, err = hub.Register(3, nil)
	assert.ErrorIs(t, err, ErrServerFull)
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxSocketsPerUser; i++ {
		_, err := hub.Register(7, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(7, nil)
	assert.ErrorIs(t, err, ErrUserFull)
	assert.Equal(t, maxSocketsPerUser, hub.ConnectionCount(7))

	_, err = hub.Register(8, nil)
	assert.NoError(t, err, "limit is per user")
}

func TestHub_EvictsSlowSocket(t *testing.T) {
	hub := NewHub()
	slow, err := hub.Register(1, nil)
	require.NoError(t, err)
	other, err := hub.Register(1, nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer; i++ {
		require.True(t, slow.TrySend([]byte(fmt.Sprintf("%d", i))))
	}
	hub.Broadcast(1, "overflow")

	assert.Equal(t, 1, hub.ConnectionCount(1))
	assert.Equal(t, "overflow", receive(t, other))
	assert.Equal(t, reasonSlow, slow.closeReason())

	drained := 0
	for range slow.Send {
		drained++
	}
	assert.Equal(t, sendBuffer, drained, "queued messages are still flushed before the close frame")
}

func TestHub_StartWiring_FansOutThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub()
	client, err := hub.Register(42, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	notifier := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, notifier))

	require.NoError(t, notifier.PublishEvent(ctx, 42, EventNotificationCreated, map[string]int{"id": 5}))
	var ev struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(receive(t, client)), &ev))
	assert.Equal(t, EventNotificationCreated, ev.Type)
	assert.Equal(t, 5, ev.Payload["id"])

	require.NoError(t, notifier.PublishBroadcast(ctx, "all"))
	assert.Equal(t, "all", receive(t, client))

	require.NoError(t, rdb.Publish(ctx, "notifications:user:abc", "bad").Err())
	require.NoError(t, notifier.PublishUser(ctx, 42, "after bad"))
	assert.Equal(t, "after bad", receive(t, client))
}

func TestHub_LocalFallbackWithoutRedis(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register(9, nil)
	require.NoError(t, err)

	notifier := NewNotifier(nil)
	require.NoError(t, hub.StartWiring(context.Background(), notifier))
	require.NoError(t, notifier.PublishUser(context.Background(), 9, "direct"))
	assert.Equal(t, "direct", receive(t, client))
}
