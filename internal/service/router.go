// Package service contains the message router: the single entry point
// that turns an inbound envelope into a durable write plus a delivery
// action against the connection registry.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberhq/emberchat/internal/audit"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/hub"
	"github.com/emberhq/emberchat/internal/membership"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/pkg/log"
)

// Kind tags an envelope as a direct or channel message.
type Kind uint8

const (
	KindDirect Kind = iota
	KindChannel
)

// Envelope is the router's normalized representation of an inbound
// message: kind, declared sender, delivery target, and text.
type Envelope struct {
	Kind     Kind
	SenderID int64
	TargetID int64 // receiver ID for direct, channel ID for channel
	Text     string
}

// Router validates, persists, and delivers messages. Side effects are
// strictly ordered: persist before deliver on creation, delete before
// notify on deletion. A persistence failure aborts delivery.
type Router struct {
	store     repository.Store
	authority *membership.Authority
	hub       *hub.Hub
}

// NewRouter creates a message router.
func NewRouter(store repository.Store, authority *membership.Authority, h *hub.Hub) *Router {
	return &Router{
		store:     store,
		authority: authority,
		hub:       h,
	}
}

// Route dispatches one envelope on behalf of an authenticated identity.
// A declared sender that does not match that identity is rejected with
// domain.ErrUnauthorized before anything is persisted or delivered.
func (r *Router) Route(ctx context.Context, authenticatedID int64, env Envelope) error {
	if env.SenderID != authenticatedID {
		return domain.ErrUnauthorized
	}

	switch env.Kind {
	case KindDirect:
		_, err := r.SendDirect(ctx, env.SenderID, env.TargetID, env.Text)
		return err
	case KindChannel:
		_, err := r.SendChannel(ctx, env.SenderID, env.TargetID, env.Text)
		return err
	default:
		return fmt.Errorf("%w: unknown envelope kind %d", domain.ErrBadFrame, env.Kind)
	}
}

// SendDirect persists a direct message and fans it out to the
// receiver's live direct connections and back to the sender's own, so
// every open session of both parties reflects it.
func (r *Router) SendDirect(ctx context.Context, senderID, receiverID int64, text string) (*domain.DirectMessage, error) {
	if _, err := r.store.GetUser(ctx, senderID); err != nil {
		return nil, err
	}
	if _, err := r.store.GetUser(ctx, receiverID); err != nil {
		return nil, err
	}

	msg := &domain.DirectMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	}
	if err := r.store.CreateDirectMessage(ctx, msg); err != nil {
		return nil, err
	}

	frame := domain.DirectMessageFrame{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
		Status:     domain.DeliveryStored,
	}
	receiverKey := hub.DirectKey(receiverID)
	if r.hub.Has(receiverKey) {
		frame.Status = domain.DeliveryDelivered
	}

	if err := r.hub.Fanout(receiverKey, frame); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("direct fanout failed")
	}
	// A self-addressed message already reached every session above.
	if senderID != receiverID {
		if err := r.hub.Fanout(hub.DirectKey(senderID), frame); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("sender echo fanout failed")
		}
	}

	audit.LogWithTarget(ctx, audit.ActionSendDirect, senderID, receiverID, "direct message sent")
	return msg, nil
}

// SendChannel persists a channel message and fans it out to every
// connection subscribed to the channel, the sender's included.
func (r *Router) SendChannel(ctx context.Context, senderID, channelID int64, text string) (*domain.ChannelMessage, error) {
	if _, err := r.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}

	allowed, err := r.authority.CanWrite(ctx, senderID, channelID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrForbidden
	}

	msg := &domain.ChannelMessage{
		ChannelID: channelID,
		SenderID:  senderID,
		Text:      text,
	}
	if err := r.store.CreateChannelMessage(ctx, msg); err != nil {
		return nil, err
	}

	frame := domain.ChannelMessageFrame{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	if err := r.hub.Fanout(hub.ChannelKey(channelID), frame); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("channel fanout failed")
	}

	audit.LogWithTarget(ctx, audit.ActionSendChannel, senderID, channelID, "channel message sent")
	return msg, nil
}

// DeleteDirectMessage removes a direct message (admin only) and then
// notifies both parties' live connections. No notice is sent when the
// delete fails.
func (r *Router) DeleteDirectMessage(ctx context.Context, actorID, messageID int64) error {
	if err := r.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	msg, err := r.store.GetDirectMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := r.store.DeleteDirectMessage(ctx, messageID); err != nil {
		return err
	}

	notice := domain.DeletionNotice{
		Action:     domain.ActionMessageDeleted,
		MessageID:  messageID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
	}
	r.hub.Fanout(hub.DirectKey(msg.ReceiverID), notice)
	if msg.SenderID != msg.ReceiverID {
		r.hub.Fanout(hub.DirectKey(msg.SenderID), notice)
	}

	audit.LogWithTarget(ctx, audit.ActionDeleteMessage, actorID, messageID, "direct message deleted")
	return nil
}

// DeleteChannelMessage removes a channel message (admin only) and then
// notifies the channel's live connections.
func (r *Router) DeleteChannelMessage(ctx context.Context, actorID, messageID int64) error {
	if err := r.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	msg, err := r.store.GetChannelMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := r.store.DeleteChannelMessage(ctx, messageID); err != nil {
		return err
	}

	notice := domain.DeletionNotice{
		Action:    domain.ActionMessageDeleted,
		MessageID: messageID,
		ChannelID: msg.ChannelID,
	}
	r.hub.Fanout(hub.ChannelKey(msg.ChannelID), notice)

	audit.LogWithTarget(ctx, audit.ActionDeleteMessage, actorID, messageID, "channel message deleted")
	return nil
}

func (r *Router) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := r.store.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrForbidden
		}
		return err
	}
	if !actor.IsAdmin {
		return domain.ErrForbidden
	}
	return nil
}
