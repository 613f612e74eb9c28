// Package discord connects the relay to Discord through the gateway
// websocket and slash commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/user/smsrelay/internal/gateway"
	"github.com/user/smsrelay/internal/router"
	"github.com/user/smsrelay/internal/types"
)

const adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild

// Adapter bridges Discord to the gateway and implements router.Platform.
type Adapter struct {
	session *discordgo.Session
	gateway *gateway.Gateway
	router  *router.Router
	guildID string
}

var _ router.Platform = (*Adapter)(nil)

// New creates a Discord adapter. When guildID is set, slash commands are
// registered to that guild only, which takes effect immediately.
func New(token, guildID string, gw *gateway.Gateway, rt *router.Router) (*Adapter, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return &Adapter{
		session: s,
		gateway: gw,
		router:  rt,
		guildID: guildID,
	}, nil
}

// Start connects, registers slash commands and blocks until ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.onMessageCreate)
	a.session.AddHandler(a.onMemberRemove)
	a.session.AddHandler(a.onInteraction)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer a.session.Close()

	appID := a.session.State.User.ID
	if _, err := a.session.ApplicationCommandBulkOverwrite(appID, a.guildID, commandDefinitions()); err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	slog.Info("discord adapter started", "user", a.session.State.User.Username, "guild_scope", a.guildID)

	<-ctx.Done()
	return nil
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	user := userID(m.Author.ID)

	if m.GuildID == "" {
		dm := types.DirectMessage{UserID: user, Text: m.Content}
		channel := m.ChannelID
		err := a.gateway.DispatchUser(string(user), "direct-message", func(ctx context.Context) error {
			reply := a.router.HandleDirectMessage(ctx, a, dm)
			if _, err := a.session.ChannelMessageSend(channel, reply); err != nil {
				return &types.PlatformError{Op: "reply to direct message", Err: err}
			}
			return nil
		})
		if err != nil {
			slog.Error("dispatch direct message failed", "user_id", user, "error", err)
		}
		return
	}

	if m.Content == "" {
		return
	}
	cm := types.ChannelMessage{
		MessageID:  types.NewMessageID(types.PlatformDiscord, m.ID),
		ChannelID:  channelID(m.ChannelID),
		GuildID:    guildID(m.GuildID),
		AuthorID:   user,
		AuthorName: authorName(m.Message),
		Content:    m.Content,
	}
	authorID, nativeChannel := m.Author.ID, m.ChannelID
	cm.AuthorIsAdmin = func(context.Context) bool {
		perms, err := a.session.UserChannelPermissions(authorID, nativeChannel)
		if err != nil {
			slog.Warn("discord permission lookup failed", "user_id", user, "error", err)
		}
		return isAdmin(perms)
	}
	err := a.gateway.DispatchChannel(string(cm.ChannelID), "announcement", func(ctx context.Context) error {
		_, err := a.router.HandleChannelMessage(ctx, a, cm)
		return err
	})
	if err != nil {
		slog.Error("dispatch channel message failed", "channel_id", cm.ChannelID, "error", err)
	}
}

func (a *Adapter) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil || m.User == nil {
		return
	}
	user := userID(m.User.ID)
	guild := guildID(m.GuildID)
	err := a.gateway.DispatchUser(string(user), "member-left", func(ctx context.Context) error {
		a.router.HandleMemberLeft(ctx, user, guild)
		return nil
	})
	if err != nil {
		slog.Error("dispatch member departure failed", "user_id", user, "error", err)
	}
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		a.respondNow(i.Interaction, router.NoticeDirectOnlyPrompt)
		return
	}

	// Commands may wait behind other work on the user's lane, so the
	// interaction is acknowledged first and answered by edit.
	if err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		slog.Warn("acknowledge interaction failed", "error", err)
		return
	}

	data := i.ApplicationCommandData()
	user := userID(i.Member.User.ID)
	req := commandRequest{
		name:    data.Name,
		user:    user,
		guild:   guildID(i.GuildID),
		channel: optionChannel(data.Options),
		isAdmin: isAdmin(i.Member.Permissions),
	}
	reply := newReplier(func(text string) {
		if _, err := a.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &text}); err != nil {
			slog.Warn("interaction reply failed", "command", req.name, "error", err)
		}
	})

	err := a.gateway.DispatchUser(string(user), "command:"+req.name, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("command %s panic: %v", req.name, r)
				reply.send(router.NoticeGenericFailure)
			}
		}()
		reply.send(a.runCommand(ctx, req))
		return nil
	})
	if err != nil {
		slog.Error("dispatch command failed", "command", req.name, "error", err)
		reply.send(router.NoticeGenericFailure)
	}
}

// commandRequest is a slash command reduced to what the router needs.
type commandRequest struct {
	name    string
	user    types.UserID
	guild   types.GuildID
	channel string
	isAdmin bool
}

func (a *Adapter) runCommand(ctx context.Context, req commandRequest) string {
	switch req.name {
	case "subscribe":
		return a.router.Subscribe(ctx, a, req.user, req.guild)
	case "unsubscribe":
		return a.router.Unsubscribe(ctx, req.user, req.guild)
	case "setchannel":
		var ch types.ChannelID
		if req.channel != "" {
			ch = channelID(req.channel)
		}
		return a.router.SetChannel(ctx, router.SetChannelRequest{
			GuildID:     req.guild,
			ChannelID:   ch,
			ChannelName: channelMention(req.channel),
			UserID:      req.user,
			IsAdmin:     req.isAdmin,
		})
	case "status":
		return a.router.Status(ctx, router.StatusRequest{
			GuildID:     req.guild,
			ChannelName: func(ch types.ChannelID) string { return channelMention(types.Native(ch)) },
			IsAdmin:     req.isAdmin,
		})
	default:
		return router.NoticeGenericFailure
	}
}

func (a *Adapter) respondNow(i *discordgo.Interaction, text string) {
	err := a.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("interaction reply failed", "error", err)
	}
}

// replier sends at most one reply per interaction.
type replier struct {
	once sync.Once
	fn   func(string)
}

func newReplier(fn func(string)) *replier {
	return &replier{fn: fn}
}

func (r *replier) send(text string) {
	r.once.Do(func() { r.fn(text) })
}

func (a *Adapter) SendDirect(_ context.Context, user types.UserID, text string) error {
	ch, err := a.session.UserChannelCreate(types.Native(user))
	if err != nil {
		return &types.PlatformError{Op: "open direct channel", Err: err}
	}
	if _, err := a.session.ChannelMessageSend(ch.ID, text); err != nil {
		if dmsClosed(err) {
			return &types.PlatformError{Op: "send direct message", Err: fmt.Errorf("direct messages closed: %w", err)}
		}
		return &types.PlatformError{Op: "send direct message", Err: err}
	}
	return nil
}

func (a *Adapter) GuildName(_ context.Context, guild types.GuildID) (string, error) {
	id := types.Native(guild)
	if g, err := a.session.State.Guild(id); err == nil && g.Name != "" {
		return g.Name, nil
	}
	g, err := a.session.Guild(id)
	if err != nil {
		return "", &types.PlatformError{Op: "get guild", Err: err}
	}
	return g.Name, nil
}

func (a *Adapter) IsMember(_ context.Context, guild types.GuildID, user types.UserID) (bool, error) {
	gid, uid := types.Native(guild), types.Native(user)
	if _, err := a.session.State.Member(gid, uid); err == nil {
		return true, nil
	}
	if _, err := a.session.GuildMember(gid, uid); err != nil {
		if restCode(err) == discordgo.ErrCodeUnknownMember {
			return false, nil
		}
		return false, &types.PlatformError{Op: "get guild member", Err: err}
	}
	return true, nil
}

func (a *Adapter) React(_ context.Context, channel types.ChannelID, message types.MessageID, emoji string) error {
	if err := a.session.MessageReactionAdd(types.Native(channel), types.Native(message), emoji); err != nil {
		return &types.PlatformError{Op: "add reaction", Err: err}
	}
	return nil
}

func (a *Adapter) SendChannel(_ context.Context, channel types.ChannelID, text string) (types.MessageID, error) {
	msg, err := a.session.ChannelMessageSend(types.Native(channel), text)
	if err != nil {
		return "", &types.PlatformError{Op: "send channel message", Err: err}
	}
	return types.NewMessageID(types.PlatformDiscord, msg.ID), nil
}

func (a *Adapter) DeleteMessage(_ context.Context, channel types.ChannelID, message types.MessageID) error {
	if err := a.session.ChannelMessageDelete(types.Native(channel), types.Native(message)); err != nil {
		return &types.PlatformError{Op: "delete message", Err: err}
	}
	return nil
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	var manageGuild int64 = discordgo.PermissionManageGuild
	return []*discordgo.ApplicationCommand{
		{
			Name:        "subscribe",
			Description: "Get this server's announcements by SMS",
		},
		{
			Name:        "unsubscribe",
			Description: "Stop getting this server's announcements by SMS",
		},
		{
			Name:                     "setchannel",
			Description:              "Choose the channel whose messages are relayed by SMS",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Announcement channel",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
					Required:     true,
				},
			},
		},
		{
			Name:                     "status",
			Description:              "Show the announcement channel and subscriber count",
			DefaultMemberPermissions: &manageGuild,
		},
	}
}

func optionChannel(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, o := range opts {
		if o.Name == "channel" && o.Type == discordgo.ApplicationCommandOptionChannel {
			return o.ChannelValue(nil).ID
		}
	}
	return ""
}

func isAdmin(perms int64) bool {
	return perms&adminPermissions != 0
}

func restCode(err error) int {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Message != nil {
		return re.Message.Code
	}
	return 0
}

// dmsClosed reports whether Discord refused a DM because of the user's
// privacy settings.
func dmsClosed(err error) bool {
	return restCode(err) == discordgo.ErrCodeCannotSendMessagesToThisUser
}

func authorName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author != nil {
		return m.Author.DisplayName()
	}
	return ""
}

func channelMention(id string) string {
	if id == "" {
		return ""
	}
	return "<#" + id + ">"
}

func userID(id string) types.UserID {
	return types.NewUserID(types.PlatformDiscord, id)
}

func guildID(id string) types.GuildID {
	return types.NewGuildID(types.PlatformDiscord, id)
}

func channelID(id string) types.ChannelID {
	return types.NewChannelID(types.PlatformDiscord, id)
}
