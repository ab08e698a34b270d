package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/emberhq/emberchat/internal/domain"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateUser creates a new user.
func (s *GormStore) CreateUser(ctx context.Context, user *domain.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *GormStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by ID.
func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.WithContext(ctx).Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SetAdmin updates a user's admin flag.
func (s *GormStore) SetAdmin(ctx context.Context, id int64, admin bool) error {
	result := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_admin", admin)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateChannel creates a channel. Name uniqueness is case-insensitive.
func (s *GormStore) CreateChannel(ctx context.Context, channel *domain.Channel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Channel{}).
			Where("LOWER(name) = LOWER(?)", channel.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrConflict
		}
		if err := tx.Create(channel).Error; err != nil {
			return mapError(err)
		}
		return nil
	})
}

// GetChannel retrieves a channel by ID.
func (s *GormStore) GetChannel(ctx context.Context, id int64) (*domain.Channel, error) {
	var channel domain.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &channel, nil
}

// GetChannelByName retrieves a channel by name, case-insensitively.
func (s *GormStore) GetChannelByName(ctx context.Context, name string) (*domain.Channel, error) {
	var channel domain.Channel
	if err := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&channel).Error; err != nil {
		return nil, mapError(err)
	}
	return &channel, nil
}

// ListChannels returns all channels ordered by ID.
func (s *GormStore) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var channels []domain.Channel
	if err := s.db.WithContext(ctx).Order("id asc").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// DeleteChannel deletes a channel together with its messages and
// memberships in one transaction.
func (s *GormStore) DeleteChannel(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&domain.Channel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Delete(&domain.ChannelMessage{}, "channel_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Membership{}, "channel_id = ?", id).Error
	})
}

// CreateMembership creates a membership row. Both referenced entities
// must exist; the (user, channel) pair is unique.
func (s *GormStore) CreateMembership(ctx context.Context, m *domain.Membership) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("id = ?", m.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Model(&domain.Channel{}).Where("id = ?", m.ChannelID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Create(m).Error; err != nil {
			return mapError(err)
		}
		return nil
	})
}

// GetMembership retrieves the membership row for a (user, channel) pair.
func (s *GormStore) GetMembership(ctx context.Context, userID, channelID int64) (*domain.Membership, error) {
	var m domain.Membership
	if err := s.db.WithContext(ctx).
		First(&m, "user_id = ? AND channel_id = ?", userID, channelID).Error; err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// DeleteMembership removes the membership row for a (user, channel) pair.
func (s *GormStore) DeleteMembership(ctx context.Context, userID, channelID int64) error {
	result := s.db.WithContext(ctx).
		Delete(&domain.Membership{}, "user_id = ? AND channel_id = ?", userID, channelID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateDirectMessage persists a direct message.
func (s *GormStore) CreateDirectMessage(ctx context.Context, m *domain.DirectMessage) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetDirectMessage retrieves a direct message by ID.
func (s *GormStore) GetDirectMessage(ctx context.Context, id int64) (*domain.DirectMessage, error) {
	var m domain.DirectMessage
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// ListDirectMessages returns the conversation between two users, oldest first.
func (s *GormStore) ListDirectMessages(ctx context.Context, userA, userB int64) ([]domain.DirectMessage, error) {
	var msgs []domain.DirectMessage
	if err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at asc, id asc").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteDirectMessage removes a direct message by ID.
func (s *GormStore) DeleteDirectMessage(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&domain.DirectMessage{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateChannelMessage persists a channel message.
func (s *GormStore) CreateChannelMessage(ctx context.Context, m *domain.ChannelMessage) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetChannelMessage retrieves a channel message by ID.
func (s *GormStore) GetChannelMessage(ctx context.Context, id int64) (*domain.ChannelMessage, error) {
	var m domain.ChannelMessage
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// ListChannelMessages returns a page of a channel's messages, oldest first.
func (s *GormStore) ListChannelMessages(ctx context.Context, channelID int64, offset, limit int) ([]domain.ChannelMessage, error) {
	var msgs []domain.ChannelMessage
	q := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at asc, id asc").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteChannelMessage removes a channel message by ID.
func (s *GormStore) DeleteChannelMessage(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&domain.ChannelMessage{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapError converts database-specific errors to domain errors.
func mapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}

	errStr := err.Error()

	// SQLite / PostgreSQL unique constraint violation
	if strings.Contains(errStr, "UNIQUE constraint") || strings.Contains(errStr, "duplicate key") {
		return domain.ErrConflict
	}
	// MySQL unique constraint violation
	if strings.Contains(errStr, "Duplicate entry") {
		return domain.ErrConflict
	}

	return err
}
