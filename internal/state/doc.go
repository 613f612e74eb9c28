// Package state provides the SQLite-backed subscriber store and the
// in-memory registry of pending signup sessions.
package state

import "github.com/user/smsrelay/internal/types"

// Compile-time interface compliance checks.
var _ types.Store = (*Store)(nil)
