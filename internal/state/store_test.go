// internal/state/store_test.go
package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/user/smsrelay/internal/types"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "smsrelay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestUpsertSubscriberIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	user := types.NewUserID("test", "u1")
	guild := types.NewGuildID("test", "g1")

	for i := 0; i < 2; i++ {
		if err := store.UpsertSubscriber(ctx, user, guild, "+12345678900"); err != nil {
			t.Fatal(err)
		}
	}

	subs, err := store.ListSubscribers(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}
	if subs[0].Phone != "+12345678900" {
		t.Errorf("expected phone +12345678900, got %s", subs[0].Phone)
	}
}

func TestUpsertSubscriberReplacesPhone(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	user := types.NewUserID("test", "u1")
	guild := types.NewGuildID("test", "g1")

	if err := store.UpsertSubscriber(ctx, user, guild, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, user, guild, "+13125550000"); err != nil {
		t.Fatal(err)
	}

	subs, err := store.ListSubscribers(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Phone != "+13125550000" {
		t.Fatalf("expected replaced phone, got %+v", subs)
	}
}

func TestListSubscribersScopedToGuild(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	g1 := types.NewGuildID("test", "g1")
	g2 := types.NewGuildID("test", "g2")

	if err := store.UpsertSubscriber(ctx, types.NewUserID("test", "a"), g1, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, types.NewUserID("test", "b"), g1, "+12345678901"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, types.NewUserID("test", "a"), g2, "+12345678900"); err != nil {
		t.Fatal(err)
	}

	subs, err := store.ListSubscribers(ctx, g1)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers in g1, got %d", len(subs))
	}
	if subs[0].UserID != types.NewUserID("test", "a") {
		t.Errorf("expected insertion order, got %s first", subs[0].UserID)
	}

	empty, err := store.ListSubscribers(ctx, types.NewGuildID("test", "none"))
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestRemoveSubscriber(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	user := types.NewUserID("test", "u1")
	guild := types.NewGuildID("test", "g1")

	removed, err := store.RemoveSubscriber(ctx, user, guild)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("expected nothing removed for unknown subscriber")
	}

	if err := store.UpsertSubscriber(ctx, user, guild, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	removed, err = store.RemoveSubscriber(ctx, user, guild)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected subscriber removed")
	}
}

func TestRemoveSubscriberByUser(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	user := types.NewUserID("test", "u1")
	g1 := types.NewGuildID("test", "g1")
	g2 := types.NewGuildID("test", "g2")

	for _, g := range []types.GuildID{g1, g2} {
		if err := store.UpsertSubscriber(ctx, user, g, "+12345678900"); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.RemoveSubscriberByUser(ctx, user, g1); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountSubscribers(ctx, g1); n != 0 {
		t.Errorf("expected g1 empty, got %d", n)
	}
	if n, _ := store.CountSubscribers(ctx, g2); n != 1 {
		t.Errorf("expected g2 untouched, got %d", n)
	}

	if err := store.RemoveSubscriberByUser(ctx, user, ""); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountSubscribers(ctx, g2); n != 0 {
		t.Errorf("expected guild-agnostic removal, got %d", n)
	}
}

func TestRemoveSubscribersByPhone(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	g1 := types.NewGuildID("test", "g1")
	g2 := types.NewGuildID("test", "g2")
	a := types.NewUserID("test", "a")
	b := types.NewUserID("test", "b")

	if err := store.UpsertSubscriber(ctx, a, g1, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, a, g2, "+12345678900"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, b, g1, "+13125550000"); err != nil {
		t.Fatal(err)
	}

	removed, err := store.RemoveSubscribersByPhone(ctx, "+12345678900")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed rows, got %d", len(removed))
	}
	subs, err := store.ListSubscribers(ctx, g1)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].UserID != b {
		t.Errorf("expected only b left in g1, got %+v", subs)
	}
}

func TestAnnouncementChannel(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	guild := types.NewGuildID("test", "g1")
	admin := types.NewUserID("test", "admin")

	_, ok, err := store.GetAnnouncementChannel(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected unset channel")
	}

	if err := store.SetAnnouncementChannel(ctx, guild, types.NewChannelID("test", "c1"), admin); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAnnouncementChannel(ctx, guild, types.NewChannelID("test", "c2"), admin); err != nil {
		t.Fatal(err)
	}

	ch, ok, err := store.GetAnnouncementChannel(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected channel set")
	}
	if ch.ChannelID != types.NewChannelID("test", "c2") {
		t.Errorf("expected c2 to replace c1, got %s", ch.ChannelID)
	}
	if ch.SetBy != admin {
		t.Errorf("expected set_by %s, got %s", admin, ch.SetBy)
	}
}

func TestGuildStatus(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	guild := types.NewGuildID("test", "g1")

	status, err := store.GuildStatus(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if status.ChannelSet || status.Subscribers != 0 {
		t.Errorf("expected empty status, got %+v", status)
	}

	if err := store.SetAnnouncementChannel(ctx, guild, types.NewChannelID("test", "c1"), types.NewUserID("test", "admin")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSubscriber(ctx, types.NewUserID("test", "a"), guild, "+12345678900"); err != nil {
		t.Fatal(err)
	}

	status, err = store.GuildStatus(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if !status.ChannelSet || status.ChannelID != types.NewChannelID("test", "c1") {
		t.Errorf("expected channel c1, got %+v", status)
	}
	if status.Subscribers != 1 {
		t.Errorf("expected 1 subscriber, got %d", status.Subscribers)
	}
}

func TestStorageErrorOnClosedStore(t *testing.T) {
	store := openTempStore(t)
	_ = store.Close()

	err := store.UpsertSubscriber(context.Background(), types.NewUserID("test", "u"), types.NewGuildID("test", "g"), "+12345678900")
	var se *types.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}
