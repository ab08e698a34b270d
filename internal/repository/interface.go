package repository

import (
	"context"

	"github.com/emberhq/emberchat/internal/domain"
)

// Store is the persistence gateway. Every call is transactional on its
// own: it either commits fully or leaves no partial write behind.
// Missing entities are reported as domain.ErrNotFound and unique
// violations as domain.ErrConflict.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SetAdmin(ctx context.Context, id int64, admin bool) error

	// Channels
	CreateChannel(ctx context.Context, channel *domain.Channel) error
	GetChannel(ctx context.Context, id int64) (*domain.Channel, error)
	GetChannelByName(ctx context.Context, name string) (*domain.Channel, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	// DeleteChannel cascades to the channel's messages and memberships.
	DeleteChannel(ctx context.Context, id int64) error

	// Memberships
	CreateMembership(ctx context.Context, m *domain.Membership) error
	GetMembership(ctx context.Context, userID, channelID int64) (*domain.Membership, error)
	DeleteMembership(ctx context.Context, userID, channelID int64) error

	// Direct messages
	CreateDirectMessage(ctx context.Context, m *domain.DirectMessage) error
	GetDirectMessage(ctx context.Context, id int64) (*domain.DirectMessage, error)
	// ListDirectMessages returns the conversation between two users,
	// oldest first.
	ListDirectMessages(ctx context.Context, userA, userB int64) ([]domain.DirectMessage, error)
	DeleteDirectMessage(ctx context.Context, id int64) error

	// Channel messages
	CreateChannelMessage(ctx context.Context, m *domain.ChannelMessage) error
	GetChannelMessage(ctx context.Context, id int64) (*domain.ChannelMessage, error)
	// ListChannelMessages returns a page of a channel's messages,
	// oldest first.
	ListChannelMessages(ctx context.Context, channelID int64, offset, limit int) ([]domain.ChannelMessage, error)
	DeleteChannelMessage(ctx context.Context, id int64) error
}
