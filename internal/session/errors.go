package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken rejects a login with an empty token before any I/O.
	ErrInvalidToken = errors.New("session: token is empty")
	// ErrInvalidUser rejects a login whose user record is incomplete.
	ErrInvalidUser = errors.New("session: invalid user")
	// ErrLoginInProgress rejects a login that overlaps another.
	ErrLoginInProgress = errors.New("session: login already in progress")
	// ErrAlreadyHydrated is returned by a second Hydrate call.
	ErrAlreadyHydrated = errors.New("session: already hydrated")
	// ErrNotInitialized is returned by methods called on a nil *Store.
	ErrNotInitialized = errors.New("session: store not initialized")
	// ErrNoProvider is returned when a context carries no Store.
	ErrNoProvider = errors.New("session: no store in context, wrap it with session.NewContext")
)

// PersistenceError reports a failed read, write or remove against the
// durable store.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptSessionError reports a persisted session that could not be
// restored. The store treats it as logged out.
type CorruptSessionError struct {
	Err error
}

func (e *CorruptSessionError) Error() string {
	return "session: stored session is corrupt: " + e.Err.Error()
}

func (e *CorruptSessionError) Unwrap() error { return e.Err }

// IsPersistence reports whether err (or any wrapped error) is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
