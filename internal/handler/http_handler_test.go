package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberhq/emberchat/internal/auth"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/hub"
	"github.com/emberhq/emberchat/internal/membership"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/internal/service"
)

type apiFixture struct {
	store  repository.Store
	engine *gin.Engine
	tokens *auth.Manager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.Channel{},
		&domain.Membership{},
		&domain.DirectMessage{},
		&domain.ChannelMessage{},
	))

	store := repository.NewGormStore(db)
	authority := membership.NewAuthority(store)
	router := service.NewRouter(store, authority, hub.New())
	tokens, err := auth.NewManager(time.Hour, "emberchat")
	require.NoError(t, err)

	engine := gin.New()
	NewHTTPHandler(store, authority, router, tokens).RegisterRoutes(engine)

	return &apiFixture{store: store, engine: engine, tokens: tokens}
}

func (f *apiFixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

// tokenFor signs a token for an already-registered user.
func (f *apiFixture) tokenFor(t *testing.T, username string) string {
	t.Helper()
	user, err := f.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	token, _, err := f.tokens.Generate(user)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) signup(t *testing.T, username string) {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/users", "", gin.H{"username": username, "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, rec.Body.String())
	return envelope.Data
}

func TestSignupFirstUserIsAdmin(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/users", "", gin.H{"username": "alice", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, decodeData(t, rec)["is_admin"].(bool))

	rec = f.request(t, http.MethodPost, "/users", "", gin.H{"username": "bob", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.False(t, decodeData(t, rec)["is_admin"].(bool))

	// The stored hash never leaks in responses.
	require.NotContains(t, rec.Body.String(), "password")
}

func TestSignupDuplicateUsername(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "alice")

	rec := f.request(t, http.MethodPost, "/users", "", gin.H{"username": "alice", "password": "other"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "alice")

	rec := f.request(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.NotEmpty(t, data["token"])

	rec = f.request(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodPost, "/login", "", gin.H{"username": "nobody", "password": "hunter2"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/channels", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodGet, "/channels", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChannelCreateIsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin") // first user
	f.signup(t, "bob")

	body := gin.H{"name": "general", "is_public": true}

	rec := f.request(t, http.MethodPost, "/channels", f.tokenFor(t, "bob"), body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodPost, "/channels", f.tokenFor(t, "admin"), body)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Case-insensitive duplicate.
	rec = f.request(t, http.MethodPost, "/channels", f.tokenFor(t, "admin"), gin.H{"name": "General", "is_public": true})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListChannelsByName(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	token := f.tokenFor(t, "admin")

	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 10, Name: "General", IsPublic: true}))

	rec := f.request(t, http.MethodGet, "/channels?name=general", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "General", decodeData(t, rec)["name"])

	rec = f.request(t, http.MethodGet, "/channels?name=missing", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinAndLeaveChannel(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	f.signup(t, "bob")
	token := f.tokenFor(t, "bob")

	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 10, Name: "general", IsPublic: true}))
	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 20, Name: "staff", IsPublic: false}))

	rec := f.request(t, http.MethodPost, "/channels/10/join", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Successfully joined the channel", decodeData(t, rec)["message"])

	rec = f.request(t, http.MethodPost, "/channels/10/join", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "already a member", decodeData(t, rec)["message"])

	rec = f.request(t, http.MethodPost, "/channels/20/join", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodPost, "/channels/999/join", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, http.MethodPost, "/channels/10/leave", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPost, "/channels/10/leave", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelHistoryAccess(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	f.signup(t, "bob")
	adminToken := f.tokenFor(t, "admin")
	bobToken := f.tokenFor(t, "bob")

	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 20, Name: "staff", IsPublic: false}))
	admin, err := f.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	require.NoError(t, f.store.CreateMembership(context.Background(), &domain.Membership{UserID: admin.ID, ChannelID: 20}))

	send := gin.H{"channel_id": 20, "sender_id": admin.ID, "text": "minutes"}
	rec := f.request(t, http.MethodPost, "/channel-messages", adminToken, send)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.request(t, http.MethodGet, "/channels/20/messages", bobToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodGet, "/channels/20/messages", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "minutes")
}

func TestSendChannelMessageSenderMismatch(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	f.signup(t, "bob")
	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 10, Name: "general", IsPublic: true}))

	admin, err := f.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/channel-messages", f.tokenFor(t, "bob"),
		gin.H{"channel_id": 10, "sender_id": admin.ID, "text": "spoofed"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectMessageFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	f.signup(t, "bob")
	adminToken := f.tokenFor(t, "admin")
	bobToken := f.tokenFor(t, "bob")

	bob, err := f.store.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/messages", adminToken, gin.H{"receiver_id": bob.ID, "text": "hello bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	messageID := int64(decodeData(t, rec)["id"].(float64))

	admin, err := f.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	rec = f.request(t, http.MethodGet, fmt.Sprintf("/messages/%d", admin.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "hello bob")

	// Deletion is admin only.
	rec = f.request(t, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), bobToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChannelCascadesOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	adminToken := f.tokenFor(t, "admin")

	require.NoError(t, f.store.CreateChannel(context.Background(), &domain.Channel{ID: 10, Name: "general", IsPublic: true}))
	admin, err := f.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	require.NoError(t, f.store.CreateChannelMessage(context.Background(), &domain.ChannelMessage{
		ChannelID: 10, SenderID: admin.ID, Text: "doomed",
	}))

	rec := f.request(t, http.MethodDelete, "/channels/10", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rows, err := f.store.ListChannelMessages(context.Background(), 10, 0, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSetAdmin(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "admin")
	f.signup(t, "bob")

	bob, err := f.store.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)

	rec := f.request(t, http.MethodPut, fmt.Sprintf("/users/%d/admin", bob.ID), f.tokenFor(t, "bob"),
		gin.H{"admin": true})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodPut, fmt.Sprintf("/users/%d/admin", bob.ID), f.tokenFor(t, "admin"),
		gin.H{"admin": true})
	require.Equal(t, http.StatusOK, rec.Code)

	bob, err = f.store.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, bob.IsAdmin)
}
