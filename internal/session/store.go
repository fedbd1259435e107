// Package session owns the client's authentication state and keeps it in
// sync with a durable key-value store.
//
// A Store has two states, logged out and logged in. Login moves to logged in
// after both keys are written; Logout and Expire move to logged out and never
// leave the user stuck authenticated because a delete failed. Hydrate runs
// once at startup and can only restore a logged-in session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/naveenspark/porch/pkg/domain"
	"github.com/naveenspark/porch/pkg/kv"
)

// Default key names in the durable store.
const (
	DefaultTokenKey = "token"
	DefaultUserKey  = "user"
)

// Reason says why the session changed.
type Reason int

const (
	ReasonRestored Reason = iota + 1
	ReasonLogin
	ReasonLogout
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonRestored:
		return "restored"
	case ReasonLogin:
		return "login"
	case ReasonLogout:
		return "logout"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers once per state transition.
type Event struct {
	Session domain.Session
	Reason  Reason
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeys overrides the token and user key names.
func WithKeys(tokenKey, userKey string) Option {
	return func(s *Store) {
		s.tokenKey = tokenKey
		s.userKey = userKey
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

// Store is the single owner of the live session.
type Store struct {
	kv       kv.Store
	logger   *slog.Logger
	tokenKey string
	userKey  string

	// writeMu serializes every operation that touches kv.
	writeMu sync.Mutex

	mu       sync.RWMutex
	state    domain.Session
	hydrated bool

	hydrateStarted atomic.Bool
	loggingIn      atomic.Bool

	subMu     sync.Mutex
	subs      []subscriber
	nextSubID int
}

// New creates a logged-out Store backed by store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:       store,
		logger:   slog.New(slog.DiscardHandler),
		tokenKey: DefaultTokenKey,
		userKey:  DefaultUserKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns a snapshot of the session. It never blocks on I/O.
func (s *Store) Current() domain.Session {
	if s == nil {
		return domain.Session{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	snap.User = snap.User.Clone()
	return snap
}

// Hydrated reports whether Hydrate has finished.
func (s *Store) Hydrated() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Hydrate restores a persisted session. It runs at most once.
//
// A missing token leaves the store logged out with no error. A token without
// a decodable user record is discarded and reported as *CorruptSessionError.
// Read failures are reported as *PersistenceError. In every failure case the
// store stays logged out.
func (s *Store) Hydrate(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialized
	}
	if !s.hydrateStarted.CompareAndSwap(false, true) {
		return ErrAlreadyHydrated
	}

	ev, changed, err := s.hydrate(ctx)

	s.mu.Lock()
	s.hydrated = true
	s.mu.Unlock()

	if changed {
		s.logger.Info("session restored", "email", ev.Session.Email(), "epoch", ev.Session.Epoch)
		s.notify(ev)
	}
	return err
}

func (s *Store) hydrate(ctx context.Context) (Event, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token, err := s.kv.Get(ctx, s.tokenKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Event{}, false, nil
	}
	if err != nil {
		s.logger.Warn("read stored token", "error", err)
		return Event{}, false, &PersistenceError{Op: "read", Key: s.tokenKey, Err: err}
	}

	raw, err := s.kv.Get(ctx, s.userKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("read stored user", "error", err)
		return Event{}, false, &PersistenceError{Op: "read", Key: s.userKey, Err: err}
	}

	var user *domain.User
	switch {
	case token == "":
		err = errors.New("stored token is empty")
	case errors.Is(err, kv.ErrNotFound):
		err = errors.New("stored token has no user record")
	default:
		user, err = domain.DecodeUser(raw)
	}
	if err != nil {
		s.logger.Warn("discarding corrupt stored session", "error", err)
		s.removeKeys(ctx)
		return Event{}, false, &CorruptSessionError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsAuthenticated() {
		// A login finished first; it is newer than what is on disk.
		return Event{}, false, nil
	}
	return s.setLocked(domain.Session{User: user, Token: token}, ReasonRestored), true, nil
}

// Login persists token and user, then marks the session authenticated.
// Nothing changes in memory unless both writes succeed.
func (s *Store) Login(ctx context.Context, user *domain.User, token string) error {
	if s == nil {
		return ErrNotInitialized
	}
	if token == "" {
		return ErrInvalidToken
	}
	encoded, err := domain.EncodeUser(user)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if !s.loggingIn.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	defer s.loggingIn.Store(false)

	ev, err := s.login(ctx, user.Clone(), token, encoded)
	if err != nil {
		return err
	}
	s.logger.Info("logged in", "email", ev.Session.Email(), "epoch", ev.Session.Epoch)
	s.notify(ev)
	return nil
}

func (s *Store) login(ctx context.Context, user *domain.User, token, encoded string) (Event, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Set(ctx, s.tokenKey, token); err != nil {
		s.logger.Error("persist token", "error", err)
		return Event{}, &PersistenceError{Op: "write", Key: s.tokenKey, Err: err}
	}
	if err := s.kv.Set(ctx, s.userKey, encoded); err != nil {
		s.logger.Error("persist user", "error", err)
		// Do not leave a token on disk without its user.
		if rmErr := s.kv.Remove(context.WithoutCancel(ctx), s.tokenKey); rmErr != nil {
			s.logger.Warn("roll back token", "error", rmErr)
		}
		return Event{}, &PersistenceError{Op: "write", Key: s.userKey, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(domain.Session{User: user, Token: token}, ReasonLogin), nil
}

// Logout removes the persisted session and clears the in-memory state.
// The state is cleared even when removal fails; the failure is logged and
// returned. Logging out while logged out changes nothing and notifies no one.
func (s *Store) Logout(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialized
	}
	ev, changed, err := s.clear(ctx, ReasonLogout, nil)
	if changed {
		s.logger.Info("logged out", "epoch", ev.Session.Epoch)
		s.notify(ev)
	}
	return err
}

// Expire is a forced logout after the server rejected the token. It only
// acts when epoch is still current, so a rejection from a request started
// under an older session cannot log out a newer one. It reports whether the
// session was expired.
func (s *Store) Expire(ctx context.Context, epoch uint64) bool {
	if s == nil {
		return false
	}
	ev, changed, err := s.clear(ctx, ReasonExpired, &epoch)
	if err != nil {
		s.logger.Warn("expire session", "error", err)
	}
	if changed {
		s.logger.Info("session expired", "epoch", ev.Session.Epoch)
		s.notify(ev)
	}
	return changed
}

func (s *Store) clear(ctx context.Context, reason Reason, epoch *uint64) (Event, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if epoch != nil {
		s.mu.RLock()
		stale := s.state.Epoch != *epoch || !s.state.IsAuthenticated()
		s.mu.RUnlock()
		if stale {
			return Event{}, false, nil
		}
	}

	err := s.removeKeys(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsAuthenticated() {
		return Event{}, false, err
	}
	return s.setLocked(domain.Session{}, reason), true, err
}

// removeKeys deletes both keys, attempting each even if the other fails.
func (s *Store) removeKeys(ctx context.Context) error {
	var errs []error
	for _, key := range []string{s.tokenKey, s.userKey} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logger.Warn("remove stored key", "key", key, "error", err)
			errs = append(errs, &PersistenceError{Op: "remove", Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// setLocked replaces the state and bumps the epoch. s.mu must be held.
func (s *Store) setLocked(next domain.Session, reason Reason) Event {
	next.Epoch = s.state.Epoch + 1
	s.state = next
	snap := next
	snap.User = next.User.Clone()
	return Event{Session: snap, Reason: reason}
}
