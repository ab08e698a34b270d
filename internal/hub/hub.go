// Package hub is the connection registry: it tracks live websocket
// connections keyed by delivery target and fans payloads out to them.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/emberhq/emberchat/pkg/log"
)

// KeyKind distinguishes the registry's two keyspaces.
type KeyKind uint8

const (
	// KindDirect keys a user's direct sessions by user ID.
	KindDirect KeyKind = iota
	// KindChannel keys a channel's realtime subscribers by channel ID.
	KindChannel
)

// Key identifies a delivery target.
type Key struct {
	Kind KeyKind
	ID   int64
}

// DirectKey returns the registry key for a user's direct sessions.
func DirectKey(userID int64) Key {
	return Key{Kind: KindDirect, ID: userID}
}

// ChannelKey returns the registry key for a channel's subscribers.
func ChannelKey(channelID int64) Key {
	return Key{Kind: KindChannel, ID: channelID}
}

// Hub owns the registry state and its synchronization. A single coarse
// lock guards both keyspaces; fanout never holds it while writing to a
// connection (the send is a buffered-channel handoff to the client's
// write pump, and the set is snapshotted first).
type Hub struct {
	mu    sync.RWMutex
	conns map[Key]map[*Client]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		conns: make(map[Key]map[*Client]struct{}),
	}
}

// Register adds a connection to the set for key, creating the set if
// the key is absent.
func (h *Hub) Register(key Key, c *Client) {
	h.mu.Lock()
	set, ok := h.conns[key]
	if !ok {
		set = make(map[*Client]struct{})
		h.conns[key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	l := log.L()
	l.Debug().
		Str(log.FieldConnectionID, c.ID).
		Int64(log.FieldUserID, c.UserID).
		Msg("connection registered")
}

// Deregister removes a connection from the set for key and drops the
// key entirely once the set is empty. Safe to call more than once for
// the same connection.
func (h *Hub) Deregister(key Key, c *Client) {
	h.mu.Lock()
	set, ok := h.conns[key]
	present := false
	if ok {
		if _, present = set[c]; present {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, key)
			}
		}
	}
	h.mu.Unlock()

	if !present {
		return
	}
	c.closeSend()

	l := log.L()
	l.Debug().
		Str(log.FieldConnectionID, c.ID).
		Int64(log.FieldUserID, c.UserID).
		Msg("connection deregistered")
}

// Fanout sends the payload to every connection currently registered
// under key. One connection's failure never aborts delivery to the
// rest: the failed connection is scheduled for removal instead.
func (h *Hub) Fanout(key Key, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	set := h.conns[key]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			l := log.L()
			l.Warn().
				Str(log.FieldConnectionID, c.ID).
				Int64(log.FieldUserID, c.UserID).
				Msg("dropping stale connection after failed delivery")
			go h.Deregister(key, c)
		}
	}
	return nil
}

// Has reports whether any connection is registered under key.
func (h *Hub) Has(key Key) bool {
	return h.Count(key) > 0
}

// Count returns the number of connections registered under key.
func (h *Hub) Count(key Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[key])
}
