// internal/state/registry.go
package state

import (
	"sync"
	"time"

	"github.com/user/smsrelay/internal/types"
)

// DefaultSessionTimeout is how long a pending signup stays finalizable.
const DefaultSessionTimeout = 15 * time.Minute

// DefaultSweepInterval is how often expired sessions are discarded.
const DefaultSweepInterval = 5 * time.Minute

// Registry holds pending signup sessions in memory, one per user.
// Sessions are intentionally volatile and are lost on restart.
type Registry struct {
	mu       sync.Mutex
	sessions map[types.UserID]types.PendingSession
	timeout  time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty Registry whose sessions expire after timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Registry{
		sessions: make(map[types.UserID]types.PendingSession),
		timeout:  timeout,
		now:      time.Now,
	}
}

// SetClock replaces the registry's time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Timeout returns the configured expiry window.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Start records a pending session for user targeting guild, discarding any
// previous session for that user.
func (r *Registry) Start(user types.UserID, guild types.GuildID) types.PendingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := types.PendingSession{
		UserID:    user,
		GuildID:   guild,
		CreatedAt: r.now(),
	}
	r.sessions[user] = sess
	return sess
}

// Get returns the user's session without judging expiry.
func (r *Registry) Get(user types.UserID) (types.PendingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[user]
	return sess, ok
}

// End removes the user's session. Missing sessions are ignored.
func (r *Registry) End(user types.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, user)
}

// Expired reports whether sess is older than the timeout. A session aged
// exactly the timeout is still live.
func (r *Registry) Expired(sess types.PendingSession) bool {
	r.mu.Lock()
	now := r.now()
	r.mu.Unlock()
	return r.expiredAt(sess, now)
}

func (r *Registry) expiredAt(sess types.PendingSession, now time.Time) bool {
	return now.Sub(sess.CreatedAt) > r.timeout
}

// Sweep evicts every expired session and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for user, sess := range r.sessions {
		if r.expiredAt(sess, now) {
			delete(r.sessions, user)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending sessions, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
