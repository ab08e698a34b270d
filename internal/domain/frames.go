package domain

import "time"

// Close codes for rejected channel-session handshakes. Each failure
// cause gets a distinct non-1000 code so clients can tell them apart.
const (
	CloseUnknownUser    = 4001
	CloseUnknownChannel = 4002
	CloseNotMember      = 4003
)

// Delivery status annotations on direct message frames.
const (
	DeliveryDelivered = "delivered"
	DeliveryStored    = "stored"
)

// ActionMessageDeleted marks a deletion notice frame.
const ActionMessageDeleted = "message_deleted"

// DirectFrame is the inbound frame on a direct session. The sender is
// implicit from the connection's identity.
type DirectFrame struct {
	ReceiverID int64  `json:"receiver_id"`
	Text       string `json:"text"`
}

// ChannelFrame is the inbound frame on a channel session. The declared
// sender must equal the connection's identity.
type ChannelFrame struct {
	SenderID int64  `json:"sender_id"`
	Text     string `json:"text"`
}

// DirectMessageFrame is the outbound frame for a delivered direct
// message. Status is "stored" when the receiver had no live connection.
type DirectMessageFrame struct {
	MessageID  int64     `json:"message_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status,omitempty"`
}

// ChannelMessageFrame is the outbound frame for a delivered channel message.
type ChannelMessageFrame struct {
	MessageID int64     `json:"message_id"`
	ChannelID int64     `json:"channel_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorFrame is sent to the originating connection only. The
// connection stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

// DeletionNotice is broadcast to the same delivery set as the original
// message, only after the delete write succeeded.
type DeletionNotice struct {
	Action     string `json:"action"`
	MessageID  int64  `json:"message_id"`
	ChannelID  int64  `json:"channel_id,omitempty"`
	SenderID   int64  `json:"sender_id,omitempty"`
	ReceiverID int64  `json:"receiver_id,omitempty"`
}
