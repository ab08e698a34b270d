package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberhq/emberchat/internal/config"
)

func newTestClient(userID int64, key Key, h *Hub, buffer int) *Client {
	cfg := config.WebSocketConfig{SendBuffer: buffer}
	return NewClient(fmt.Sprintf("conn-%d", userID), userID, key, h, nil, cfg)
}

func recvPayload(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &payload))
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestFanoutReachesEveryConnection(t *testing.T) {
	h := New()
	key := ChannelKey(10)

	a := newTestClient(1, key, h, 8)
	b := newTestClient(2, key, h, 8)
	h.Register(key, a)
	h.Register(key, b)

	require.NoError(t, h.Fanout(key, map[string]interface{}{"text": "hi"}))

	require.Equal(t, "hi", recvPayload(t, a)["text"])
	require.Equal(t, "hi", recvPayload(t, b)["text"])
}

func TestMultipleSessionsPerUser(t *testing.T) {
	h := New()
	key := DirectKey(7)

	first := newTestClient(7, key, h, 8)
	second := newTestClient(7, key, h, 8)
	h.Register(key, first)
	h.Register(key, second)

	require.Equal(t, 2, h.Count(key))
	require.NoError(t, h.Fanout(key, map[string]interface{}{"text": "both"}))

	require.Equal(t, "both", recvPayload(t, first)["text"])
	require.Equal(t, "both", recvPayload(t, second)["text"])
}

func TestDeregisterDropsEmptyKey(t *testing.T) {
	h := New()
	key := DirectKey(1)

	c := newTestClient(1, key, h, 8)
	h.Register(key, c)
	require.True(t, h.Has(key))

	h.Deregister(key, c)
	require.False(t, h.Has(key))
	require.Equal(t, 0, h.Count(key))

	// A fanout to the emptied key must not reach the removed connection.
	require.NoError(t, h.Fanout(key, map[string]interface{}{"text": "gone"}))
	_, ok := <-c.Send
	require.False(t, ok, "expected closed send channel after deregistration")
}

func TestDeregisterIsIdempotent(t *testing.T) {
	h := New()
	key := DirectKey(1)

	c := newTestClient(1, key, h, 8)
	h.Register(key, c)

	h.Deregister(key, c)
	require.NotPanics(t, func() {
		h.Deregister(key, c)
	})
}

func TestFanoutIsolatesFailedConnection(t *testing.T) {
	h := New()
	key := ChannelKey(10)

	// The stale client has a full buffer, so its send fails.
	stale := newTestClient(1, key, h, 1)
	stale.Send <- []byte("filler")
	healthy := newTestClient(2, key, h, 8)
	h.Register(key, stale)
	h.Register(key, healthy)

	require.NoError(t, h.Fanout(key, map[string]interface{}{"text": "still delivered"}))

	require.Equal(t, "still delivered", recvPayload(t, healthy)["text"])

	// The failed connection is scheduled for removal.
	require.Eventually(t, func() bool {
		return h.Count(key) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentRegisterFanoutDeregister(t *testing.T) {
	h := New()
	key := ChannelKey(42)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := newTestClient(int64(n), key, h, 64)
			h.Register(key, c)
			h.Fanout(key, map[string]interface{}{"n": n})
			h.Deregister(key, c)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 0, h.Count(key))
}
