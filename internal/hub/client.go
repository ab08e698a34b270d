package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberhq/emberchat/internal/config"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/pkg/log"
)

// Client is one live connection: a websocket transport plus the
// registry key it is registered under. It is ephemeral and process
// local; nothing about it is persisted.
type Client struct {
	ID     string
	UserID int64
	Key    Key
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte

	config   config.WebSocketConfig
	sendOnce sync.Once
}

// NewClient creates a client for an accepted connection. The key is the
// single registry key this session will be registered under.
func NewClient(id string, userID int64, key Key, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Key:    key,
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, buffer),
		config: cfg,
	}
}

// ReadPump decodes inbound frames one at a time and hands each to the
// handler. It returns when the transport closes or an unrecoverable
// read fault occurs; deregistration is guaranteed on every exit path,
// including a panic inside the handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Deregister(c.Key, c)
		c.Conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read failed")
			}
			return
		}

		c.handleFrame(handler, message)
	}
}

// handleFrame isolates one frame's processing so a panic in the
// handler is confined to that frame and the session loop continues.
func (c *Client) handleFrame(handler func(*Client, []byte), message []byte) {
	defer func() {
		if r := recover(); r != nil {
			l := log.L()
			l.Error().
				Interface("panic", r).
				Str(log.FieldConnectionID, c.ID).
				Msg("recovered from frame handler panic")
		}
	}()
	handler(c, message)
}

// WritePump drains the send buffer to the transport and keeps the
// connection alive with pings. It exits when the send channel closes
// (deregistration) or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON marshals v and queues it for this connection only.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return domain.ErrDeliveryFailure
	}
	return nil
}

// enqueue hands data to the write pump without blocking. A full buffer
// means the peer stopped draining; the send is reported as failed.
func (c *Client) enqueue(data []byte) (ok bool) {
	defer func() {
		// Send channel may close concurrently on deregistration.
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.Send)
	})
}
