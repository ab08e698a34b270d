package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emberhq/emberchat/internal/audit"
	"github.com/emberhq/emberchat/internal/config"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/hub"
	"github.com/emberhq/emberchat/internal/membership"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/internal/service"
	"github.com/emberhq/emberchat/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler accepts realtime sessions. Each connection moves through
// Connecting (handshake and authorization), Open (frame loop), and
// Closed (guaranteed deregistration).
type WSHandler struct {
	hub       *hub.Hub
	router    *service.Router
	store     repository.Store
	authority *membership.Authority
	wsCfg     config.WebSocketConfig
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(h *hub.Hub, router *service.Router, store repository.Store, authority *membership.Authority, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:       h,
		router:    router,
		store:     store,
		authority: authority,
		wsCfg:     wsCfg,
	}
}

// RegisterRoutes mounts the realtime endpoints.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/realtime/direct/:user_id", h.ConnectDirect)
	r.GET("/realtime/channel/:channel_id/:user_id", h.ConnectChannel)
}

// ConnectDirect opens a direct-message session for a user.
func (h *WSHandler) ConnectDirect(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid user id")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUser(ctx, userID); err != nil {
		h.reject(conn, domain.CloseUnknownUser, "unknown user")
		return
	}

	h.open(ctx, conn, userID, hub.DirectKey(userID), h.handleDirectFrame)
}

// ConnectChannel opens a channel session for a user. The handshake
// verifies the user and channel exist and that the user may read the
// channel; each failure closes with its own code, and no registration
// happens on failure.
func (h *WSHandler) ConnectChannel(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid channel id")
		return
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid user id")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUser(ctx, userID); err != nil {
		h.reject(conn, domain.CloseUnknownUser, "unknown user")
		return
	}
	if _, err := h.store.GetChannel(ctx, channelID); err != nil {
		h.reject(conn, domain.CloseUnknownChannel, "unknown channel")
		return
	}
	allowed, err := h.authority.CanRead(ctx, userID, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reject(conn, domain.CloseUnknownChannel, "unknown channel")
			return
		}
		l := log.L()
		l.Error().Err(err).Int64(log.FieldChannelID, channelID).Msg("channel access check failed")
		h.reject(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !allowed {
		h.reject(conn, domain.CloseNotMember, "not a member")
		return
	}

	h.open(ctx, conn, userID, hub.ChannelKey(channelID), h.handleChannelFrame)
}

// open transitions an authorized connection to Open: register, start
// the pumps, and audit the session boundaries.
func (h *WSHandler) open(ctx context.Context, conn *websocket.Conn, userID int64, key hub.Key, frameHandler func(*hub.Client, []byte)) {
	client := hub.NewClient(uuid.New().String(), userID, key, h.hub, conn, h.wsCfg)
	h.hub.Register(key, client)
	audit.Log(ctx, audit.ActionConnect, userID, "realtime session opened")

	go client.WritePump()
	go func() {
		client.ReadPump(frameHandler)
		audit.Log(context.Background(), audit.ActionDisconnect, userID, "realtime session closed")
	}()
}

// handleDirectFrame decodes one direct frame. The sender is implicit
// from the connection identity. Malformed frames are logged and
// skipped; routing errors go back to this connection only.
func (h *WSHandler) handleDirectFrame(c *hub.Client, message []byte) {
	var frame domain.DirectFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldConnectionID, c.ID).Msg("discarding undecodable frame")
		return
	}

	env := service.Envelope{
		Kind:     service.KindDirect,
		SenderID: c.UserID,
		TargetID: frame.ReceiverID,
		Text:     frame.Text,
	}
	if err := h.router.Route(h.frameContext(c), c.UserID, env); err != nil {
		c.SendJSON(domain.ErrorFrame{Error: domain.ErrorLabel(err)})
	}
}

// handleChannelFrame decodes one channel frame. The declared sender
// must match the connection identity; a mismatch yields an
// Unauthorized error frame and the loop continues.
func (h *WSHandler) handleChannelFrame(c *hub.Client, message []byte) {
	var frame domain.ChannelFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldConnectionID, c.ID).Msg("discarding undecodable frame")
		return
	}

	env := service.Envelope{
		Kind:     service.KindChannel,
		SenderID: frame.SenderID,
		TargetID: c.Key.ID,
		Text:     frame.Text,
	}
	if err := h.router.Route(h.frameContext(c), c.UserID, env); err != nil {
		c.SendJSON(domain.ErrorFrame{Error: domain.ErrorLabel(err)})
	}
}

// frameContext builds a per-frame context carrying a logger tagged
// with the connection identity.
func (h *WSHandler) frameContext(c *hub.Client) context.Context {
	l := log.L().With().
		Str(log.FieldConnectionID, c.ID).
		Int64(log.FieldUserID, c.UserID).
		Logger()
	return log.WithLogger(context.Background(), l)
}

// reject closes a handshake that failed authorization with a distinct
// close code. The connection never reaches the registry.
func (h *WSHandler) reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.wsCfg.WriteWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
