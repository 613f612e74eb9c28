package discord

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		perms int64
		want  bool
	}{
		{"none", 0, false},
		{"send messages", discordgo.PermissionSendMessages, false},
		{"administrator", discordgo.PermissionAdministrator, true},
		{"manage guild", discordgo.PermissionManageGuild, true},
		{"mixed", discordgo.PermissionSendMessages | discordgo.PermissionManageGuild, true},
	}
	for _, tt := range tests {
		if got := isAdmin(tt.perms); got != tt.want {
			t.Errorf("%s: isAdmin(%d) = %v, want %v", tt.name, tt.perms, got, tt.want)
		}
	}
}

func TestCommandDefinitions(t *testing.T) {
	cmds := commandDefinitions()
	byName := make(map[string]*discordgo.ApplicationCommand)
	for _, c := range cmds {
		byName[c.Name] = c
	}
	for _, name := range []string{"subscribe", "unsubscribe", "setchannel", "status"} {
		if byName[name] == nil {
			t.Errorf("missing command %q", name)
		}
	}

	set := byName["setchannel"]
	if set == nil {
		t.Fatal("setchannel not defined")
	}
	if len(set.Options) != 1 || set.Options[0].Type != discordgo.ApplicationCommandOptionChannel || !set.Options[0].Required {
		t.Errorf("setchannel should take one required channel option, got %+v", set.Options)
	}
	if set.DefaultMemberPermissions == nil || *set.DefaultMemberPermissions != discordgo.PermissionManageGuild {
		t.Error("setchannel should default to manage-guild members")
	}
	if byName["subscribe"].DefaultMemberPermissions != nil {
		t.Error("subscribe should be open to everyone")
	}
}

func TestOptionChannel(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "555"},
	}
	if got := optionChannel(opts); got != "555" {
		t.Errorf("expected 555, got %q", got)
	}
	if got := optionChannel(nil); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestDMsClosed(t *testing.T) {
	closed := &discordgo.RESTError{Message: &discordgo.APIErrorMessage{
		Code:    discordgo.ErrCodeCannotSendMessagesToThisUser,
		Message: "Cannot send messages to this user",
	}}
	if !dmsClosed(fmt.Errorf("send: %w", closed)) {
		t.Error("expected wrapped 50007 to be detected")
	}
	if dmsClosed(errors.New("timeout")) {
		t.Error("plain error should not count as closed DMs")
	}
	if dmsClosed(&discordgo.RESTError{}) {
		t.Error("REST error without a message should not count")
	}
}

func TestRestCodeUnknownMember(t *testing.T) {
	err := &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMember}}
	if restCode(err) != discordgo.ErrCodeUnknownMember {
		t.Errorf("expected unknown member code, got %d", restCode(err))
	}
}

func TestAuthorName(t *testing.T) {
	user := &discordgo.User{Username: "gopher", GlobalName: "Gopher"}
	tests := []struct {
		name string
		msg  *discordgo.Message
		want string
	}{
		{"nickname wins", &discordgo.Message{Author: user, Member: &discordgo.Member{Nick: "Chief"}}, "Chief"},
		{"global name", &discordgo.Message{Author: user, Member: &discordgo.Member{}}, "Gopher"},
		{"username", &discordgo.Message{Author: &discordgo.User{Username: "gopher"}}, "gopher"},
	}
	for _, tt := range tests {
		if got := authorName(tt.msg); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestChannelMention(t *testing.T) {
	if got := channelMention("555"); got != "<#555>" {
		t.Errorf("expected <#555>, got %q", got)
	}
	if got := channelMention(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestReplierSendsOnce(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	r := newReplier(func(text string) {
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.send("reply")
		}()
	}
	wg.Wait()

	if len(sent) != 1 {
		t.Errorf("expected exactly one reply, got %d", len(sent))
	}
}

func TestIDs(t *testing.T) {
	if userID("1") != "discord:1" || guildID("2") != "discord:2" || channelID("3") != "discord:3" {
		t.Error("unexpected id namespacing")
	}
}
