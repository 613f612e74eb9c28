package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/smsrelay/internal/types"
)

// Handler delivers a direct message to a namespaced user ID.
type Handler func(ctx context.Context, user types.UserID, text string) error

// Registry routes direct messages to the platform adapter that owns the
// user ID prefix (e.g. "discord:", "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for user IDs starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver finds the handler with the longest matching prefix and calls it.
func (r *Registry) Deliver(ctx context.Context, user types.UserID, text string) error {
	r.mu.RLock()
	var (
		best    Handler
		bestLen = -1
	)
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(string(user), prefix) && len(prefix) > bestLen {
			best, bestLen = handler, len(prefix)
		}
	}
	r.mu.RUnlock()

	if best == nil {
		return fmt.Errorf("no delivery handler for user: %s", user)
	}
	return best(ctx, user, text)
}

// Notify delivers text to every subscriber, returning how many succeeded.
// Failures are collected and do not stop the remaining deliveries.
func (r *Registry) Notify(ctx context.Context, subs []types.Subscriber, text string) (int, error) {
	var (
		sent int
		errs []string
	)
	for _, s := range subs {
		if err := r.Deliver(ctx, s.UserID, text); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		sent++
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return sent, nil
}
