package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberhq/emberchat/internal/audit"
	"github.com/emberhq/emberchat/internal/auth"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/membership"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/internal/service"
	"github.com/emberhq/emberchat/pkg/log"
	"github.com/emberhq/emberchat/pkg/response"
)

// HTTPHandler serves the plain request/response API: accounts,
// channels, membership, and message history. Message sends and
// deletions go through the router so live sessions stay in sync.
type HTTPHandler struct {
	store     repository.Store
	authority *membership.Authority
	router    *service.Router
	tokens    *auth.Manager
}

// NewHTTPHandler creates the HTTP API handler.
func NewHTTPHandler(store repository.Store, authority *membership.Authority, router *service.Router, tokens *auth.Manager) *HTTPHandler {
	return &HTTPHandler{
		store:     store,
		authority: authority,
		router:    router,
		tokens:    tokens,
	}
}

// RegisterRoutes mounts the HTTP API.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/users", h.Signup)
	r.POST("/login", h.Login)

	authed := r.Group("", auth.RequireAuth(h.tokens))
	authed.GET("/users", h.ListUsers)
	authed.PUT("/users/:user_id/admin", h.SetAdmin)
	authed.GET("/channels", h.ListChannels)
	authed.POST("/channels", h.CreateChannel)
	authed.DELETE("/channels/:channel_id", h.DeleteChannel)
	authed.POST("/channels/:channel_id/join", h.JoinChannel)
	authed.POST("/channels/:channel_id/leave", h.LeaveChannel)
	authed.GET("/channels/:channel_id/messages", h.ListChannelMessages)
	authed.POST("/channel-messages", h.SendChannelMessage)
	authed.DELETE("/channel-messages/:message_id", h.DeleteChannelMessage)
	authed.GET("/messages/:user_id", h.ListDirectMessages)
	authed.POST("/messages", h.SendDirectMessage)
	authed.DELETE("/messages/:message_id", h.DeleteDirectMessage)
}

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup creates an account. The very first account becomes an admin
// so a fresh deployment can be bootstrapped.
func (h *HTTPHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to hash password")
		response.InternalError(c, "failed to create user")
		return
	}

	existing, err := h.store.ListUsers(ctx)
	if err != nil {
		response.InternalError(c, "failed to create user")
		return
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		IsAdmin:      len(existing) == 0,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		h.respondError(c, err)
		return
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	response.Created(c, user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and issues an access token.
func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	user, err := h.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			audit.Log(ctx, audit.ActionLoginFailed, 0, "login failed: unknown user")
			response.Unauthorized(c, "invalid credentials")
			return
		}
		h.respondError(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.Log(ctx, audit.ActionLoginFailed, user.ID, "login failed: wrong password")
		response.Unauthorized(c, "invalid credentials")
		return
	}

	token, expiresAt, err := h.tokens.Generate(user)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to sign token")
		response.InternalError(c, "failed to log in")
		return
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	response.Success(c, gin.H{
		"user":       user,
		"token":      token,
		"expires_at": expiresAt,
	})
}

// ListUsers returns all registered users.
func (h *HTTPHandler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, users)
}

type setAdminRequest struct {
	Admin *bool `json:"admin" binding:"required"`
}

// SetAdmin toggles another user's admin flag. Admin only.
func (h *HTTPHandler) SetAdmin(c *gin.Context) {
	if !auth.IsAdmin(c) {
		response.Forbidden(c, "admin privileges required")
		return
	}

	userID, ok := h.pathID(c, "user_id")
	if !ok {
		return
	}
	var req setAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.store.SetAdmin(ctx, userID, *req.Admin); err != nil {
		h.respondError(c, err)
		return
	}

	audit.LogAdmin(ctx, audit.ActionSetAdmin, auth.CurrentUserID(c), auth.CurrentUsername(c), userID, "admin flag updated")
	response.Success(c, gin.H{"message": "admin flag updated"})
}

// ListChannels returns all channels, or a single channel when the
// request carries a ?name= filter (matched case-insensitively).
func (h *HTTPHandler) ListChannels(c *gin.Context) {
	ctx := c.Request.Context()

	if name := c.Query("name"); name != "" {
		channel, err := h.store.GetChannelByName(ctx, name)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response.Success(c, channel)
		return
	}

	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, channels)
}

type createChannelRequest struct {
	Name     string `json:"name" binding:"required"`
	IsPublic *bool  `json:"is_public" binding:"required"`
}

// CreateChannel creates a channel. Admin only; names are unique
// case-insensitively.
func (h *HTTPHandler) CreateChannel(c *gin.Context) {
	if !auth.IsAdmin(c) {
		response.Forbidden(c, "admin privileges required")
		return
	}

	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	channel := &domain.Channel{Name: req.Name, IsPublic: *req.IsPublic}
	if err := h.store.CreateChannel(ctx, channel); err != nil {
		h.respondError(c, err)
		return
	}

	audit.LogAdmin(ctx, audit.ActionCreateChannel, auth.CurrentUserID(c), auth.CurrentUsername(c), channel.ID, "channel created")
	response.Created(c, channel)
}

// DeleteChannel deletes a channel and cascades to its messages and
// memberships. Admin only.
func (h *HTTPHandler) DeleteChannel(c *gin.Context) {
	if !auth.IsAdmin(c) {
		response.Forbidden(c, "admin privileges required")
		return
	}

	channelID, ok := h.pathID(c, "channel_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.store.DeleteChannel(ctx, channelID); err != nil {
		h.respondError(c, err)
		return
	}

	audit.LogAdmin(ctx, audit.ActionDeleteChannel, auth.CurrentUserID(c), auth.CurrentUsername(c), channelID, "channel deleted")
	response.Success(c, gin.H{"message": "channel deleted"})
}

// JoinChannel subscribes the current user to a public channel.
// Restricted channels require an admin-granted membership, and joining
// twice is idempotent.
func (h *HTTPHandler) JoinChannel(c *gin.Context) {
	channelID, ok := h.pathID(c, "channel_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := auth.CurrentUserID(c)

	already, err := h.authority.Join(ctx, userID, channelID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if already {
		response.Success(c, gin.H{"message": "already a member"})
		return
	}
	audit.LogWithTarget(ctx, audit.ActionJoinChannel, userID, channelID, "joined channel")
	response.Success(c, gin.H{"message": "Successfully joined the channel"})
}

// LeaveChannel removes the current user's membership.
func (h *HTTPHandler) LeaveChannel(c *gin.Context) {
	channelID, ok := h.pathID(c, "channel_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := auth.CurrentUserID(c)

	if err := h.authority.Leave(ctx, userID, channelID); err != nil {
		h.respondError(c, err)
		return
	}

	audit.LogWithTarget(ctx, audit.ActionLeaveChannel, userID, channelID, "left channel")
	response.Success(c, gin.H{"message": "Successfully left the channel"})
}

// ListChannelMessages returns a page of a channel's history, oldest
// first. Requires read access to the channel.
func (h *HTTPHandler) ListChannelMessages(c *gin.Context) {
	channelID, ok := h.pathID(c, "channel_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := auth.CurrentUserID(c)

	allowed, err := h.authority.CanRead(ctx, userID, channelID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !allowed {
		response.Forbidden(c, "you don't have access to this channel")
		return
	}

	skip := h.queryInt(c, "skip", 0)
	limit := h.queryInt(c, "limit", 10)

	messages, err := h.store.ListChannelMessages(ctx, channelID, skip, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, messages)
}

type sendChannelMessageRequest struct {
	ChannelID int64  `json:"channel_id" binding:"required"`
	SenderID  int64  `json:"sender_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

// SendChannelMessage posts to a channel through the router, so live
// subscribers receive it as well.
func (h *HTTPHandler) SendChannelMessage(c *gin.Context) {
	var req sendChannelMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.SenderID != auth.CurrentUserID(c) {
		response.Unauthorized(c, "sender does not match authenticated user")
		return
	}

	msg, err := h.router.SendChannel(c.Request.Context(), req.SenderID, req.ChannelID, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, msg)
}

// DeleteChannelMessage removes a channel message and notifies live
// subscribers. Admin only, enforced by the router.
func (h *HTTPHandler) DeleteChannelMessage(c *gin.Context) {
	messageID, ok := h.pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.router.DeleteChannelMessage(c.Request.Context(), auth.CurrentUserID(c), messageID); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "message deleted"})
}

// ListDirectMessages returns the conversation between the current user
// and another user, oldest first.
func (h *HTTPHandler) ListDirectMessages(c *gin.Context) {
	otherID, ok := h.pathID(c, "user_id")
	if !ok {
		return
	}

	messages, err := h.store.ListDirectMessages(c.Request.Context(), auth.CurrentUserID(c), otherID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, messages)
}

type sendDirectMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

// SendDirectMessage sends a direct message through the router, so both
// parties' live sessions receive it.
func (h *HTTPHandler) SendDirectMessage(c *gin.Context) {
	var req sendDirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.router.SendDirect(c.Request.Context(), auth.CurrentUserID(c), req.ReceiverID, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, msg)
}

// DeleteDirectMessage removes a direct message and notifies both
// parties. Admin only, enforced by the router.
func (h *HTTPHandler) DeleteDirectMessage(c *gin.Context) {
	messageID, ok := h.pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.router.DeleteDirectMessage(c.Request.Context(), auth.CurrentUserID(c), messageID); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "message deleted"})
}

// respondError maps domain errors to HTTP status codes.
func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("request failed")
		response.InternalError(c, "internal error")
	}
}

func (h *HTTPHandler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) queryInt(c *gin.Context, name string, defaultVal int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
