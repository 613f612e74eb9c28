// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// Platform-scoped identifiers. Every ID carries its platform as a prefix
// ("discord:1234", "telegram:-100987") so one store serves every adapter.
type UserID string
type GuildID string
type ChannelID string
type MessageID string
type RelayID string
type JobID string

const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

func NewRelayID() RelayID {
	return RelayID(uuid.New().String())
}

func NewJobID() JobID {
	return JobID(uuid.New().String())
}

func NewKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func NewUserID(platform, id string) UserID {
	return UserID(NewKey(platform, id))
}

func NewGuildID(platform, id string) GuildID {
	return GuildID(NewKey(platform, id))
}

func NewChannelID(platform, id string) ChannelID {
	return ChannelID(NewKey(platform, id))
}

func NewMessageID(platform, id string) MessageID {
	return MessageID(NewKey(platform, id))
}

// SplitKey returns the platform prefix and the platform-native ID of a key.
// Keys without a prefix return an empty platform.
func SplitKey(key string) (platform, id string) {
	platform, id, ok := strings.Cut(key, ":")
	if !ok {
		return "", key
	}
	return platform, id
}

// Native strips the platform prefix.
func Native[T ~string](key T) string {
	_, id := SplitKey(string(key))
	return id
}
