// Package router decides, for each inbound event, whether it is a signup
// response, an announcement to fan out over SMS, or neither.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/smsrelay/internal/phone"
	"github.com/user/smsrelay/internal/state"
	"github.com/user/smsrelay/internal/types"
)

const (
	DefaultSummaryTTL = 10 * time.Second
	DefaultReaction   = "✅"
)

// Platform is the set of chat-platform operations the router needs.
// Each adapter implements it; tests use fakes.
type Platform interface {
	SendDirect(ctx context.Context, user types.UserID, text string) error
	GuildName(ctx context.Context, guild types.GuildID) (string, error)
	IsMember(ctx context.Context, guild types.GuildID, user types.UserID) (bool, error)
	React(ctx context.Context, channel types.ChannelID, message types.MessageID, emoji string) error
	SendChannel(ctx context.Context, channel types.ChannelID, text string) (types.MessageID, error)
	DeleteMessage(ctx context.Context, channel types.ChannelID, message types.MessageID) error
}

// Options tunes relay behaviour.
type Options struct {
	SummaryTTL  time.Duration
	Reaction    string
	MaxParallel int
}

// Router owns no state; it drives the store, the session registry and the
// SMS sender.
type Router struct {
	store    types.Store
	sessions *state.Registry
	sms      types.SMSSender
	opts     Options
}

// New creates a Router. Zero-valued options take defaults.
func New(store types.Store, sessions *state.Registry, sms types.SMSSender, opts Options) *Router {
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = DefaultSummaryTTL
	}
	if opts.Reaction == "" {
		opts.Reaction = DefaultReaction
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Router{
		store:    store,
		sessions: sessions,
		sms:      sms,
		opts:     opts,
	}
}

// HandleDirectMessage processes a DM as a signup response and returns the
// reply to send back to the user.
func (r *Router) HandleDirectMessage(ctx context.Context, p Platform, dm types.DirectMessage) string {
	sess, ok := r.sessions.Get(dm.UserID)
	if !ok {
		return NoticeNoSession
	}

	if r.sessions.Expired(sess) {
		r.sessions.End(dm.UserID)
		slog.Info("signup session expired", "user_id", dm.UserID, "guild_id", sess.GuildID)
		return NoticeExpired
	}

	// An invalid number keeps the session so the user can retry until timeout.
	number, err := phone.Canonical(dm.Text)
	if err != nil {
		slog.Debug("rejected phone input", "user_id", dm.UserID, "error", err)
		return NoticeInvalidPhone
	}

	guildName, err := p.GuildName(ctx, sess.GuildID)
	if err != nil {
		r.sessions.End(dm.UserID)
		slog.Warn("signup guild unreachable", "user_id", dm.UserID, "guild_id", sess.GuildID, "error", err)
		return NoticeGuildUnreachable
	}

	member, err := p.IsMember(ctx, sess.GuildID, dm.UserID)
	if err != nil || !member {
		r.sessions.End(dm.UserID)
		if err != nil {
			slog.Warn("signup membership check failed", "user_id", dm.UserID, "guild_id", sess.GuildID, "error", err)
		}
		return NoticeNotMember
	}

	err = r.store.UpsertSubscriber(ctx, dm.UserID, sess.GuildID, number)
	r.sessions.End(dm.UserID)
	if err != nil {
		slog.Error("save subscriber failed", "user_id", dm.UserID, "guild_id", sess.GuildID, "error", err)
		return NoticeStorageError
	}

	slog.Info("subscriber saved", "user_id", dm.UserID, "guild_id", sess.GuildID)
	return fmt.Sprintf(noticeSubscribedFmt, guildName, number)
}

// HandleChannelMessage relays msg over SMS when it was posted in its guild's
// announcement channel. A nil result means the message was ignored. Errors
// are returned only for lookups that prevented the relay from starting.
func (r *Router) HandleChannelMessage(ctx context.Context, p Platform, msg types.ChannelMessage) (*types.RelayResult, error) {
	ch, ok, err := r.store.GetAnnouncementChannel(ctx, msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("look up announcement channel: %w", err)
	}
	if !ok || ch.ChannelID != msg.ChannelID {
		return nil, nil
	}

	subs, err := r.store.ListSubscribers(ctx, msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	guildName, err := p.GuildName(ctx, msg.GuildID)
	if err != nil {
		slog.Warn("guild name lookup failed", "guild_id", msg.GuildID, "error", err)
		guildName = types.Native(msg.GuildID)
	}

	result := &types.RelayResult{
		RelayID: types.NewRelayID(),
		GuildID: msg.GuildID,
		Total:   len(subs),
	}
	body := fmt.Sprintf(broadcastFmt, guildName, msg.AuthorName, msg.Content)
	result.Delivered = r.fanOut(ctx, result.RelayID, subs, body)

	slog.Info("announcement relayed",
		"relay_id", result.RelayID,
		"guild_id", msg.GuildID,
		"delivered", result.Delivered,
		"total", result.Total,
	)

	if err := p.React(ctx, msg.ChannelID, msg.MessageID, r.opts.Reaction); err != nil {
		slog.Warn("acknowledge announcement failed", "relay_id", result.RelayID, "error", err)
	}
	if msg.AuthorIsAdmin != nil && msg.AuthorIsAdmin(ctx) {
		r.postSummary(ctx, p, msg.ChannelID, result)
	}
	return result, nil
}

// fanOut sends body to every subscriber and returns the number of
// successful sends. One failure never stops the others.
func (r *Router) fanOut(ctx context.Context, relayID types.RelayID, subs []types.Subscriber, body string) int {
	var delivered atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.opts.MaxParallel)
	for _, sub := range subs {
		g.Go(func() error {
			if err := r.sms.Send(ctx, sub.Phone, body); err != nil {
				var de *types.DeliveryError
				if !errors.As(err, &de) {
					err = &types.DeliveryError{To: sub.Phone, Err: err}
				}
				slog.Error("sms send failed", "relay_id", relayID, "user_id", sub.UserID, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load())
}

// postSummary posts the delivery count and removes it after SummaryTTL.
func (r *Router) postSummary(ctx context.Context, p Platform, channel types.ChannelID, result *types.RelayResult) {
	text := fmt.Sprintf(noticeSummaryFmt, result.Delivered, result.Total)
	id, err := p.SendChannel(ctx, channel, text)
	if err != nil {
		slog.Warn("post relay summary failed", "relay_id", result.RelayID, "error", err)
		return
	}
	time.AfterFunc(r.opts.SummaryTTL, func() {
		if err := p.DeleteMessage(context.WithoutCancel(ctx), channel, id); err != nil {
			slog.Warn("delete relay summary failed", "relay_id", result.RelayID, "error", err)
		}
	})
}

// HandleMemberLeft removes the departed member's subscription. Failures are
// logged only; there is nobody to report them to.
func (r *Router) HandleMemberLeft(ctx context.Context, user types.UserID, guild types.GuildID) {
	if err := r.store.RemoveSubscriberByUser(ctx, user, guild); err != nil {
		slog.Error("remove departed member failed", "user_id", user, "guild_id", guild, "error", err)
		return
	}
	slog.Debug("departed member cleaned up", "user_id", user, "guild_id", guild)
}

// Sweep evicts expired signup sessions.
func (r *Router) Sweep() {
	if n := r.sessions.Sweep(); n > 0 {
		slog.Info("expired signup sessions swept", "count", n)
	}
}
