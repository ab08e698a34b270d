package domain

import "time"

// User is a registered account. Identity is immutable once created;
// only the admin flag may change afterwards.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for User.
func (User) TableName() string {
	return "users"
}

// Channel is a named room. Public channels are readable and writable by
// any existing user; restricted channels require a Membership row.
// Name uniqueness is case-insensitive, enforced at creation.
type Channel struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	IsPublic  bool      `gorm:"not null" json:"is_public"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// Membership grants a user access to a restricted channel.
// The (user_id, channel_id) pair is unique.
type Membership struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_membership_pair;not null" json:"user_id"`
	ChannelID int64     `gorm:"uniqueIndex:idx_membership_pair;not null" json:"channel_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Membership.
func (Membership) TableName() string {
	return "channel_memberships"
}

// DirectMessage is a persisted one-to-one message. Immutable once
// created except for admin deletion.
type DirectMessage struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	SenderID   int64     `gorm:"index;not null" json:"sender_id"`
	ReceiverID int64     `gorm:"index;not null" json:"receiver_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for DirectMessage.
func (DirectMessage) TableName() string {
	return "direct_messages"
}

// ChannelMessage is a persisted channel post. Deleted when its channel
// is deleted, or individually by an admin.
type ChannelMessage struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ChannelID int64     `gorm:"index;not null" json:"channel_id"`
	SenderID  int64     `gorm:"index;not null" json:"sender_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for ChannelMessage.
func (ChannelMessage) TableName() string {
	return "channel_messages"
}
