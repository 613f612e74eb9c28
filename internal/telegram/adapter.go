// Package telegram connects the relay to Telegram. A group chat plays the
// part of a guild and is its own announcement channel; private chats carry
// signup replies.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/smsrelay/internal/gateway"
	"github.com/user/smsrelay/internal/router"
	"github.com/user/smsrelay/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the gateway and implements router.Platform.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	gateway *gateway.Gateway
	router  *router.Router
}

var _ router.Platform = (*Adapter)(nil)

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, rt *router.Router) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:     bot,
		gateway: gw,
		router:  rt,
	}, nil
}

// Start registers the command menu and long-polls for updates until ctx
// is cancelled.
func (a *Adapter) Start(ctx context.Context) {
	a.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) registerCommands() {
	group := tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeAllGroupChats(),
		tgbotapi.BotCommand{Command: "subscribe", Description: "Get this group's announcements by SMS"},
		tgbotapi.BotCommand{Command: "unsubscribe", Description: "Stop SMS announcements"},
		tgbotapi.BotCommand{Command: "setchannel", Description: "Relay this group's messages (admins)"},
		tgbotapi.BotCommand{Command: "status", Description: "Show relay status (admins)"},
	)
	if _, err := a.bot.Request(group); err != nil {
		slog.Warn("register telegram group commands failed", "error", err)
	}
	private := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "How to sign up"},
	)
	if _, err := a.bot.Request(private); err != nil {
		slog.Warn("register telegram private commands failed", "error", err)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.LeftChatMember != nil {
		a.handleMemberLeft(msg)
		return
	}
	// Anonymous group admins arrive as a bot sender on behalf of the chat.
	if msg.From == nil || (msg.From.IsBot && msg.SenderChat == nil) {
		return
	}

	user := userID(msg.From.ID)
	chatID := msg.Chat.ID

	if msg.Chat.IsPrivate() {
		if msg.IsCommand() {
			a.dispatchReply(user, "command", chatID, 0, func(context.Context) string {
				return router.NoticeDirectOnlyPrompt
			})
			return
		}
		text := msg.Text
		a.dispatchReply(user, "direct-message", chatID, 0, func(ctx context.Context) string {
			return a.router.HandleDirectMessage(ctx, a, types.DirectMessage{UserID: user, Text: text})
		})
		return
	}

	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return
	}
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}
	a.handleGroupMessage(msg)
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	user := userID(msg.From.ID)
	guild := guildID(msg.Chat.ID)
	chatID := msg.Chat.ID
	replyTo := msg.MessageID
	title := msg.Chat.Title

	switch msg.Command() {
	case "subscribe":
		a.dispatchReply(user, "subscribe", chatID, replyTo, func(ctx context.Context) string {
			return a.router.Subscribe(ctx, a, user, guild)
		})

	case "unsubscribe":
		a.dispatchReply(user, "unsubscribe", chatID, replyTo, func(ctx context.Context) string {
			return a.router.Unsubscribe(ctx, user, guild)
		})

	case "setchannel":
		a.dispatchReply(user, "setchannel", chatID, replyTo, func(ctx context.Context) string {
			return a.router.SetChannel(ctx, router.SetChannelRequest{
				GuildID:     guild,
				ChannelID:   channelID(chatID),
				ChannelName: title,
				UserID:      user,
				IsAdmin:     a.isAdmin(chatID, msg),
			})
		})

	case "status":
		a.dispatchReply(user, "status", chatID, replyTo, func(ctx context.Context) string {
			return a.router.Status(ctx, router.StatusRequest{
				GuildID: guild,
				ChannelName: func(ch types.ChannelID) string {
					if ch == channelID(chatID) {
						return title
					}
					return types.Native(ch)
				},
				IsAdmin: a.isAdmin(chatID, msg),
			})
		})
	}
}

func (a *Adapter) handleGroupMessage(msg *tgbotapi.Message) {
	content := messageText(msg)
	if content == "" {
		return
	}

	cm := types.ChannelMessage{
		MessageID:  messageID(msg.MessageID),
		ChannelID:  channelID(msg.Chat.ID),
		GuildID:    guildID(msg.Chat.ID),
		AuthorID:   userID(msg.From.ID),
		AuthorName: authorName(msg),
		Content:    content,
	}
	cm.AuthorIsAdmin = func(context.Context) bool {
		return a.isAdmin(msg.Chat.ID, msg)
	}

	err := a.gateway.DispatchChannel(string(cm.ChannelID), "announcement", func(ctx context.Context) error {
		_, err := a.router.HandleChannelMessage(ctx, a, cm)
		return err
	})
	if err != nil {
		slog.Error("dispatch channel message failed", "channel_id", cm.ChannelID, "error", err)
	}
}

func (a *Adapter) handleMemberLeft(msg *tgbotapi.Message) {
	user := userID(msg.LeftChatMember.ID)
	guild := guildID(msg.Chat.ID)
	err := a.gateway.DispatchUser(string(user), "member-left", func(ctx context.Context) error {
		a.router.HandleMemberLeft(ctx, user, guild)
		return nil
	})
	if err != nil {
		slog.Error("dispatch member departure failed", "user_id", user, "error", err)
	}
}

// dispatchReply runs fn on the user's lane and sends exactly one reply. A
// panic in fn turns into the generic failure notice.
func (a *Adapter) dispatchReply(user types.UserID, kind string, chatID int64, replyTo int, fn func(ctx context.Context) string) {
	err := a.gateway.DispatchUser(string(user), kind, func(ctx context.Context) (err error) {
		replied := false
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s handler panic: %v", kind, r)
				if !replied {
					a.sendResponse(chatID, replyTo, router.NoticeGenericFailure)
				}
			}
		}()
		reply := fn(ctx)
		replied = true
		a.sendResponse(chatID, replyTo, reply)
		return nil
	})
	if err != nil {
		slog.Error("dispatch failed", "kind", kind, "user_id", user, "error", err)
		a.sendResponse(chatID, replyTo, router.NoticeGenericFailure)
	}
}

// isAdmin reports whether the sender of msg administers the chat.
// Anonymous admins post as the group itself.
func (a *Adapter) isAdmin(chatID int64, msg *tgbotapi.Message) bool {
	if msg.SenderChat != nil && msg.SenderChat.ID == chatID {
		return true
	}
	member, err := a.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: msg.From.ID},
	})
	if err != nil {
		slog.Warn("telegram admin check failed", "chat_id", chatID, "error", err)
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func (a *Adapter) sendResponse(chatID int64, replyTo int, text string) {
	for i, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := a.bot.Send(msg); err != nil {
			slog.Warn("telegram send failed", "chat_id", chatID, "error", err)
		}
	}
}

// SendDirect messages a user privately. Telegram refuses until the user
// has started a chat with the bot.
func (a *Adapter) SendDirect(_ context.Context, user types.UserID, text string) error {
	id, err := nativeID(string(user))
	if err != nil {
		return &types.PlatformError{Op: "send direct message", Err: err}
	}
	for _, part := range splitMessage(text) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return &types.PlatformError{Op: "send direct message", Err: err}
		}
	}
	return nil
}

func (a *Adapter) GuildName(_ context.Context, guild types.GuildID) (string, error) {
	id, err := nativeID(string(guild))
	if err != nil {
		return "", &types.PlatformError{Op: "get chat", Err: err}
	}
	chat, err := a.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return "", &types.PlatformError{Op: "get chat", Err: err}
	}
	return chat.Title, nil
}

func (a *Adapter) IsMember(_ context.Context, guild types.GuildID, user types.UserID) (bool, error) {
	chatID, err := nativeID(string(guild))
	if err != nil {
		return false, &types.PlatformError{Op: "get chat member", Err: err}
	}
	uid, err := nativeID(string(user))
	if err != nil {
		return false, &types.PlatformError{Op: "get chat member", Err: err}
	}
	member, err := a.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: uid},
	})
	if err != nil {
		return false, &types.PlatformError{Op: "get chat member", Err: err}
	}
	return !member.HasLeft() && !member.WasKicked(), nil
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// React sets an emoji reaction. The bot API library predates reactions, so
// the raw method is called.
func (a *Adapter) React(_ context.Context, channel types.ChannelID, message types.MessageID, emoji string) error {
	chatID, err := nativeID(string(channel))
	if err != nil {
		return &types.PlatformError{Op: "react", Err: err}
	}
	msgID, err := strconv.Atoi(types.Native(message))
	if err != nil {
		return &types.PlatformError{Op: "react", Err: err}
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", msgID)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return &types.PlatformError{Op: "react", Err: err}
	}
	if _, err := a.bot.MakeRequest("setMessageReaction", params); err != nil {
		return &types.PlatformError{Op: "react", Err: err}
	}
	return nil
}

func (a *Adapter) SendChannel(_ context.Context, channel types.ChannelID, text string) (types.MessageID, error) {
	chatID, err := nativeID(string(channel))
	if err != nil {
		return "", &types.PlatformError{Op: "send channel message", Err: err}
	}
	sent, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return "", &types.PlatformError{Op: "send channel message", Err: err}
	}
	return messageID(sent.MessageID), nil
}

func (a *Adapter) DeleteMessage(_ context.Context, channel types.ChannelID, message types.MessageID) error {
	chatID, err := nativeID(string(channel))
	if err != nil {
		return &types.PlatformError{Op: "delete message", Err: err}
	}
	msgID, err := strconv.Atoi(types.Native(message))
	if err != nil {
		return &types.PlatformError{Op: "delete message", Err: err}
	}
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		return &types.PlatformError{Op: "delete message", Err: err}
	}
	return nil
}

// splitMessage breaks text into parts of at most maxTelegramMessage
// characters, never cutting through a multibyte rune.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for text != "" {
		end := 0
		for n := 0; end < len(text) && n < maxTelegramMessage; n++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func userID(id int64) types.UserID {
	return types.NewUserID(types.PlatformTelegram, strconv.FormatInt(id, 10))
}

func guildID(chatID int64) types.GuildID {
	return types.NewGuildID(types.PlatformTelegram, strconv.FormatInt(chatID, 10))
}

func channelID(chatID int64) types.ChannelID {
	return types.NewChannelID(types.PlatformTelegram, strconv.FormatInt(chatID, 10))
}

func messageID(id int) types.MessageID {
	return types.NewMessageID(types.PlatformTelegram, strconv.Itoa(id))
}

// nativeID parses the numeric Telegram ID out of a namespaced key.
func nativeID(key string) (int64, error) {
	platform, id := types.SplitKey(key)
	if platform != types.PlatformTelegram {
		return 0, fmt.Errorf("not a telegram id: %q", key)
	}
	return strconv.ParseInt(id, 10, 64)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

func authorName(msg *tgbotapi.Message) string {
	if msg.SenderChat != nil {
		return msg.SenderChat.Title
	}
	return displayName(msg.From)
}

// messageText returns the text of a message or the caption of a media post.
func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
