package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/user/smsrelay/internal/types"
)

func TestSubscribeStartsSessionAndPrompts(t *testing.T) {
	env := newTestEnv(t, Options{})

	reply := env.router.Subscribe(context.Background(), env.platform, testUser, testGuild)
	if !strings.Contains(reply, "Gopher Club") {
		t.Errorf("expected reply naming guild, got %q", reply)
	}
	if len(env.platform.dms) != 1 || !strings.Contains(env.platform.dms[0], "15 minutes") {
		t.Errorf("expected signup prompt DM, got %v", env.platform.dms)
	}
	sess, ok := env.sessions.Get(testUser)
	if !ok || sess.GuildID != testGuild {
		t.Fatalf("expected pending session for %s, got %+v", testGuild, sess)
	}
}

func TestSubscribeDMFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.platform.dmErr = &types.PlatformError{Op: "send dm", Err: errors.New("cannot send messages to this user")}

	reply := env.router.Subscribe(context.Background(), env.platform, testUser, testGuild)
	if reply != NoticeDMsDisabled {
		t.Errorf("expected corrective instruction, got %q", reply)
	}
	if _, ok := env.sessions.Get(testUser); ok {
		t.Error("expected session discarded when prompt cannot be delivered")
	}
}

func TestUnsubscribe(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	if reply := env.router.Unsubscribe(ctx, testUser, testGuild); reply != NoticeNotSubscribed {
		t.Errorf("expected not-subscribed reply, got %q", reply)
	}
	if err := env.store.UpsertSubscriber(ctx, testUser, testGuild, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	if reply := env.router.Unsubscribe(ctx, testUser, testGuild); reply != NoticeUnsubscribed {
		t.Errorf("expected unsubscribed reply, got %q", reply)
	}
}

func TestSetChannelRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	reply := env.router.SetChannel(ctx, SetChannelRequest{
		GuildID:   testGuild,
		ChannelID: testChannel,
		UserID:    testUser,
	})
	if reply != NoticeAdminOnly {
		t.Errorf("expected admin-only reply, got %q", reply)
	}
	if _, ok, _ := env.store.GetAnnouncementChannel(ctx, testGuild); ok {
		t.Error("expected channel unset")
	}
}

func TestSetChannelThenStatus(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	reply := env.router.SetChannel(ctx, SetChannelRequest{
		GuildID:     testGuild,
		ChannelID:   testChannel,
		ChannelName: "#announcements",
		UserID:      testAdmin,
		IsAdmin:     true,
	})
	if !strings.Contains(reply, "#announcements") {
		t.Errorf("unexpected reply %q", reply)
	}
	seedSubscribers(t, env, "+12345678900", "+12345678901")

	status := env.router.Status(ctx, StatusRequest{
		GuildID: testGuild,
		IsAdmin: true,
		ChannelName: func(id types.ChannelID) string {
			return "#" + types.Native(id)
		},
	})
	if status != "Announcement channel: #announcements\nSubscribers: 2" {
		t.Errorf("unexpected status %q", status)
	}

	if reply := env.router.Status(ctx, StatusRequest{GuildID: testGuild}); reply != NoticeAdminOnly {
		t.Errorf("expected admin-only status, got %q", reply)
	}
}

func TestStatusUnsetChannel(t *testing.T) {
	env := newTestEnv(t, Options{})
	status := env.router.Status(context.Background(), StatusRequest{GuildID: testGuild, IsAdmin: true})
	if status != "Announcement channel: not set\nSubscribers: 0" {
		t.Errorf("unexpected status %q", status)
	}
}

func TestCarrierOptOut(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	if err := env.store.UpsertSubscriber(ctx, testUser, testGuild, "+12345678900"); err != nil {
		t.Fatal(err)
	}

	removed, err := env.router.CarrierOptOut(ctx, "+12345678900")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0].UserID != testUser {
		t.Errorf("unexpected removed rows %+v", removed)
	}
}
