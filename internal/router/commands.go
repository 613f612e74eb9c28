package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/smsrelay/internal/types"
)

// SetChannelRequest designates an announcement channel for a guild.
type SetChannelRequest struct {
	GuildID     types.GuildID
	ChannelID   types.ChannelID
	ChannelName string
	UserID      types.UserID
	IsAdmin     bool
}

// StatusRequest asks for a guild's relay configuration.
type StatusRequest struct {
	GuildID     types.GuildID
	ChannelName func(types.ChannelID) string
	IsAdmin     bool
}

// Subscribe starts a signup session and sends the phone prompt by DM.
// The returned reply is for the command invocation itself.
func (r *Router) Subscribe(ctx context.Context, p Platform, user types.UserID, guild types.GuildID) string {
	guildName, err := p.GuildName(ctx, guild)
	if err != nil {
		slog.Warn("subscribe guild lookup failed", "guild_id", guild, "error", err)
		guildName = types.Native(guild)
	}

	r.sessions.Start(user, guild)
	prompt := fmt.Sprintf(noticeSignupPromptFmt, guildName, int(r.sessions.Timeout().Minutes()))
	if err := p.SendDirect(ctx, user, prompt); err != nil {
		r.sessions.End(user)
		var pe *types.PlatformError
		if !errors.As(err, &pe) {
			err = &types.PlatformError{Op: "send signup prompt", Err: err}
		}
		slog.Warn("signup prompt not delivered", "user_id", user, "guild_id", guild, "error", err)
		return NoticeDMsDisabled
	}

	slog.Info("signup session started", "user_id", user, "guild_id", guild)
	return fmt.Sprintf(noticeSignupStartedFmt, guildName)
}

// Unsubscribe removes the user's subscription for guild.
func (r *Router) Unsubscribe(ctx context.Context, user types.UserID, guild types.GuildID) string {
	removed, err := r.store.RemoveSubscriber(ctx, user, guild)
	if err != nil {
		slog.Error("unsubscribe failed", "user_id", user, "guild_id", guild, "error", err)
		return NoticeStorageError
	}
	if !removed {
		return NoticeNotSubscribed
	}
	slog.Info("subscriber removed", "user_id", user, "guild_id", guild)
	return NoticeUnsubscribed
}

// SetChannel designates the announcement channel. Administrators only.
func (r *Router) SetChannel(ctx context.Context, req SetChannelRequest) string {
	if !req.IsAdmin {
		return NoticeAdminOnly
	}
	if req.ChannelID == "" {
		return NoticeChannelRequired
	}
	if err := r.store.SetAnnouncementChannel(ctx, req.GuildID, req.ChannelID, req.UserID); err != nil {
		slog.Error("set announcement channel failed", "guild_id", req.GuildID, "error", err)
		return NoticeStorageError
	}
	slog.Info("announcement channel set", "guild_id", req.GuildID, "channel_id", req.ChannelID, "set_by", req.UserID)
	name := req.ChannelName
	if name == "" {
		name = types.Native(req.ChannelID)
	}
	return fmt.Sprintf(noticeChannelSetFmt, name)
}

// Status reports the guild's announcement channel and subscriber count.
// Administrators only.
func (r *Router) Status(ctx context.Context, req StatusRequest) string {
	if !req.IsAdmin {
		return NoticeAdminOnly
	}
	status, err := r.store.GuildStatus(ctx, req.GuildID)
	if err != nil {
		slog.Error("guild status failed", "guild_id", req.GuildID, "error", err)
		return NoticeStorageError
	}
	channel := "not set"
	if status.ChannelSet {
		channel = types.Native(status.ChannelID)
		if req.ChannelName != nil {
			channel = req.ChannelName(status.ChannelID)
		}
	}
	return fmt.Sprintf(noticeStatusFmt, channel, status.Subscribers)
}

// CarrierOptOut removes every subscription for a number that replied STOP
// and returns the affected subscriptions.
func (r *Router) CarrierOptOut(ctx context.Context, number string) ([]types.Subscriber, error) {
	removed, err := r.store.RemoveSubscribersByPhone(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		slog.Info("carrier opt-out processed", "subscriptions", len(removed))
	}
	return removed, nil
}
