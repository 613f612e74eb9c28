// internal/types/interfaces.go
package types

import (
	"context"
)

type SubscriberStore interface {
	UpsertSubscriber(ctx context.Context, user UserID, guild GuildID, phone string) error
	RemoveSubscriber(ctx context.Context, user UserID, guild GuildID) (bool, error)
	RemoveSubscriberByUser(ctx context.Context, user UserID, guild GuildID) error
	RemoveSubscribersByPhone(ctx context.Context, phone string) ([]Subscriber, error)
	ListSubscribers(ctx context.Context, guild GuildID) ([]Subscriber, error)
	CountSubscribers(ctx context.Context, guild GuildID) (int, error)
}

type ChannelStore interface {
	SetAnnouncementChannel(ctx context.Context, guild GuildID, channel ChannelID, setBy UserID) error
	GetAnnouncementChannel(ctx context.Context, guild GuildID) (AnnouncementChannel, bool, error)
	GuildStatus(ctx context.Context, guild GuildID) (GuildStatus, error)
}

type Store interface {
	SubscriberStore
	ChannelStore
}

// SMSSender delivers one text message to one canonical phone number.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}
