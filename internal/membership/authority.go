// Package membership decides whether a user may read or write a
// channel, based on channel visibility plus persisted membership rows.
package membership

import (
	"context"
	"errors"

	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/pkg/log"
)

// Authority answers channel access questions.
type Authority struct {
	store repository.Store
}

// NewAuthority creates a membership authority backed by the given store.
func NewAuthority(store repository.Store) *Authority {
	return &Authority{store: store}
}

// IsMember reports whether a membership row exists for the pair.
func (a *Authority) IsMember(ctx context.Context, userID, channelID int64) (bool, error) {
	_, err := a.store.GetMembership(ctx, userID, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CanRead reports whether the user may read the channel: any user for a
// public channel, members only for a restricted one. Returns
// domain.ErrNotFound when the channel does not exist.
func (a *Authority) CanRead(ctx context.Context, userID, channelID int64) (bool, error) {
	channel, err := a.store.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if channel.IsPublic {
		return true, nil
	}
	return a.IsMember(ctx, userID, channelID)
}

// CanWrite reports whether the user may post to the channel. The policy
// matches CanRead: public channels grant implicit write access.
func (a *Authority) CanWrite(ctx context.Context, userID, channelID int64) (bool, error) {
	return a.CanRead(ctx, userID, channelID)
}

// Join adds a membership row. Self-service join is only permitted on
// public channels; joining a restricted channel returns
// domain.ErrForbidden. Joining twice is idempotent: the second call
// reports alreadyMember without creating a duplicate row.
func (a *Authority) Join(ctx context.Context, userID, channelID int64) (alreadyMember bool, err error) {
	channel, err := a.store.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if !channel.IsPublic {
		return false, domain.ErrForbidden
	}

	member, err := a.IsMember(ctx, userID, channelID)
	if err != nil {
		return false, err
	}
	if member {
		return true, nil
	}

	err = a.store.CreateMembership(ctx, &domain.Membership{UserID: userID, ChannelID: channelID})
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent join; the row exists.
		return true, nil
	}
	if err != nil {
		return false, err
	}

	l := log.Ctx(ctx)
	l.Info().
		Int64(log.FieldUserID, userID).
		Int64(log.FieldChannelID, channelID).
		Msg("user joined channel")
	return false, nil
}

// Leave removes the membership row for the pair. Returns
// domain.ErrNotFound when the user was not a member.
func (a *Authority) Leave(ctx context.Context, userID, channelID int64) error {
	if err := a.store.DeleteMembership(ctx, userID, channelID); err != nil {
		return err
	}
	l := log.Ctx(ctx)
	l.Info().
		Int64(log.FieldUserID, userID).
		Int64(log.FieldChannelID, channelID).
		Msg("user left channel")
	return nil
}
