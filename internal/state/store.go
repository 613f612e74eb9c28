// internal/state/store.go
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/smsrelay/internal/types"
)

//go:embed schema.sql
var schema string

// Store is the SQLite-backed persistent store for subscribers and
// announcement channels. Every statement is a single-row write, so the
// store relies on SQLite's own atomicity instead of application locks.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storageErr(op string, err error) error {
	return &types.StorageError{Op: op, Err: err}
}

// UpsertSubscriber replaces any existing record for (user, guild).
func (s *Store) UpsertSubscriber(ctx context.Context, user types.UserID, guild types.GuildID, phone string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (user_id, guild_id, phone, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, guild_id) DO UPDATE SET
		   phone = excluded.phone,
		   created_at = excluded.created_at`,
		string(user), string(guild), phone, toMillis(s.now()),
	)
	if err != nil {
		return storageErr("upsert subscriber", err)
	}
	return nil
}

// RemoveSubscriber deletes the (user, guild) record and reports whether one existed.
func (s *Store) RemoveSubscriber(ctx context.Context, user types.UserID, guild types.GuildID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE user_id = ? AND guild_id = ?`,
		string(user), string(guild),
	)
	if err != nil {
		return false, storageErr("remove subscriber", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("remove subscriber", err)
	}
	return n > 0, nil
}

// RemoveSubscriberByUser deletes the user's record in guild, or in every
// guild when guild is empty.
func (s *Store) RemoveSubscriberByUser(ctx context.Context, user types.UserID, guild types.GuildID) error {
	var err error
	if guild == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE user_id = ?`, string(user))
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM subscribers WHERE user_id = ? AND guild_id = ?`,
			string(user), string(guild),
		)
	}
	if err != nil {
		return storageErr("remove subscriber by user", err)
	}
	return nil
}

// RemoveSubscribersByPhone deletes every record for phone and returns the
// removed rows.
func (s *Store) RemoveSubscribersByPhone(ctx context.Context, phone string) ([]types.Subscriber, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("remove subscribers by phone", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT user_id, guild_id, phone, created_at FROM subscribers WHERE phone = ? ORDER BY created_at, rowid`,
		phone,
	)
	if err != nil {
		return nil, storageErr("remove subscribers by phone", err)
	}
	removed, err := scanSubscribers(rows)
	if err != nil {
		return nil, storageErr("remove subscribers by phone", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers WHERE phone = ?`, phone); err != nil {
		return nil, storageErr("remove subscribers by phone", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("remove subscribers by phone", err)
	}
	return removed, nil
}

// ListSubscribers returns the guild's subscribers in insertion order.
func (s *Store) ListSubscribers(ctx context.Context, guild types.GuildID) ([]types.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, guild_id, phone, created_at FROM subscribers WHERE guild_id = ? ORDER BY created_at, rowid`,
		string(guild),
	)
	if err != nil {
		return nil, storageErr("list subscribers", err)
	}
	subs, err := scanSubscribers(rows)
	if err != nil {
		return nil, storageErr("list subscribers", err)
	}
	return subs, nil
}

func scanSubscribers(rows *sql.Rows) ([]types.Subscriber, error) {
	defer rows.Close()
	subs := []types.Subscriber{}
	for rows.Next() {
		var (
			sub       types.Subscriber
			user      string
			guild     string
			createdAt int64
		)
		if err := rows.Scan(&user, &guild, &sub.Phone, &createdAt); err != nil {
			return nil, err
		}
		sub.UserID = types.UserID(user)
		sub.GuildID = types.GuildID(guild)
		sub.CreatedAt = fromMillis(createdAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountSubscribers returns the number of subscribers in guild.
func (s *Store) CountSubscribers(ctx context.Context, guild types.GuildID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE guild_id = ?`, string(guild),
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count subscribers", err)
	}
	return n, nil
}

// SetAnnouncementChannel designates channel as guild's announcement channel,
// replacing any previous one.
func (s *Store) SetAnnouncementChannel(ctx context.Context, guild types.GuildID, channel types.ChannelID, setBy types.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcement_channels (guild_id, channel_id, set_by, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (guild_id) DO UPDATE SET
		   channel_id = excluded.channel_id,
		   set_by = excluded.set_by,
		   created_at = excluded.created_at`,
		string(guild), string(channel), string(setBy), toMillis(s.now()),
	)
	if err != nil {
		return storageErr("set announcement channel", err)
	}
	return nil
}

// GetAnnouncementChannel returns the guild's channel. The boolean is false
// when no channel has been set.
func (s *Store) GetAnnouncementChannel(ctx context.Context, guild types.GuildID) (types.AnnouncementChannel, bool, error) {
	var (
		ch        types.AnnouncementChannel
		channel   string
		setBy     string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, set_by, created_at FROM announcement_channels WHERE guild_id = ?`,
		string(guild),
	).Scan(&channel, &setBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AnnouncementChannel{}, false, nil
		}
		return types.AnnouncementChannel{}, false, storageErr("get announcement channel", err)
	}
	ch.GuildID = guild
	ch.ChannelID = types.ChannelID(channel)
	ch.SetBy = types.UserID(setBy)
	ch.CreatedAt = fromMillis(createdAt)
	return ch, true, nil
}

// GuildStatus summarises the guild's channel and subscriber count.
func (s *Store) GuildStatus(ctx context.Context, guild types.GuildID) (types.GuildStatus, error) {
	status := types.GuildStatus{GuildID: guild}
	ch, ok, err := s.GetAnnouncementChannel(ctx, guild)
	if err != nil {
		return status, err
	}
	if ok {
		status.ChannelID = ch.ChannelID
		status.ChannelSet = true
	}
	n, err := s.CountSubscribers(ctx, guild)
	if err != nil {
		return status, err
	}
	status.Subscribers = n
	return status, nil
}
