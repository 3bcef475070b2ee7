package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist in the backend
	// or is known to be absent from the local cache.
	ErrNotFound = errors.New("repository: document not found")

	// ErrBackendUnavailable matches every *BackendError.
	ErrBackendUnavailable = errors.New("repository: backend unavailable")

	// ErrClosed is returned by backend operations on a closed repository.
	ErrClosed = errors.New("repository: closed")
)

// BackendError reports a read that still failed after every retry.
type BackendError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("repository: backend unavailable reading %s after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// NotificationError reports a change notification that could not be
// applied. The key was purged from the local cache.
type NotificationError struct {
	Channel string
	Key     string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("repository: notification on %s for %s: %v", e.Channel, e.Key, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
