// internal/types/models.go
package types

import (
	"context"
	"time"
)

// Subscriber is a (user, guild) pair with a registered phone number.
// Phone is always in canonical +1XXXXXXXXXX form.
type Subscriber struct {
	UserID    UserID    `json:"user_id"`
	GuildID   GuildID   `json:"guild_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// AnnouncementChannel is the one channel per guild whose messages are relayed.
type AnnouncementChannel struct {
	GuildID   GuildID   `json:"guild_id"`
	ChannelID ChannelID `json:"channel_id"`
	SetBy     UserID    `json:"set_by"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingSession tracks a user mid-signup. Never persisted.
type PendingSession struct {
	UserID    UserID    `json:"user_id"`
	GuildID   GuildID   `json:"guild_id"`
	CreatedAt time.Time `json:"created_at"`
}

type GuildStatus struct {
	GuildID     GuildID   `json:"guild_id"`
	ChannelID   ChannelID `json:"channel_id,omitempty"`
	ChannelSet  bool      `json:"channel_set"`
	Subscribers int       `json:"subscribers"`
}

// RelayResult is the outcome of fanning one announcement out over SMS.
type RelayResult struct {
	RelayID   RelayID `json:"relay_id"`
	GuildID   GuildID `json:"guild_id"`
	Delivered int     `json:"delivered"`
	Total     int     `json:"total"`
}

// DirectMessage is a private message from a user to the bot.
type DirectMessage struct {
	UserID UserID
	Text   string
}

// ChannelMessage is a message posted in a guild channel.
// AuthorIsAdmin is resolved only for messages that are actually relayed;
// nil means the author is not an admin.
type ChannelMessage struct {
	MessageID     MessageID
	ChannelID     ChannelID
	GuildID       GuildID
	AuthorID      UserID
	AuthorName    string
	AuthorIsAdmin func(ctx context.Context) bool
	Content       string
}
