// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// ErrInvalidPhone is returned for phone input that is not a dialable
// North American number. It is user-correctable.
var ErrInvalidPhone = errors.New("invalid phone number")

// StorageError wraps an I/O failure in the persistent store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PlatformError wraps a failure to deliver something on the chat platform,
// e.g. a DM to a user who has direct messages disabled.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform: %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// DeliveryError is a single failed SMS send.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("sms delivery to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
