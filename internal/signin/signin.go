// Package signin runs the login screen's submit: local validation, one
// unauthenticated POST, then the session store's Login.
package signin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/naveenspark/porch/internal/session"
	"github.com/naveenspark/porch/pkg/client"
	"github.com/naveenspark/porch/pkg/domain"
)

// ErrSubmitInProgress rejects a submit while another is in flight.
var ErrSubmitInProgress = errors.New("signin: a login attempt is already in progress")

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (*client.AuthResponse, error)
}

// SessionLogin is the part of the session store the flow writes to.
type SessionLogin interface {
	Login(ctx context.Context, user *domain.User, token string) error
}

// Flow performs login submissions.
type Flow struct {
	auth     Authenticator
	sessions SessionLogin
	logger   *slog.Logger
	inFlight atomic.Bool
}

// New returns a Flow. logger may be nil.
func New(auth Authenticator, sessions SessionLogin, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Flow{auth: auth, sessions: sessions, logger: logger}
}

// InFlight reports whether a submission is running.
func (f *Flow) InFlight() bool {
	return f.inFlight.Load()
}

// Submit validates creds, authenticates, and logs the session in. Errors:
// *domain.ValidationError before any network call, *client.AuthRejectedError
// or client.ErrMalformedResponse from the server, *client.NetworkError when
// nothing answered, and the session store's errors when the login could not
// be persisted.
func (f *Flow) Submit(ctx context.Context, creds domain.Credentials) error {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := domain.ValidateCredentials(creds); err != nil {
		return err
	}
	if !f.inFlight.CompareAndSwap(false, true) {
		return ErrSubmitInProgress
	}
	defer f.inFlight.Store(false)

	auth, err := f.auth.Authenticate(ctx, creds)
	if err != nil {
		f.logger.Info("login failed", "email", creds.Email, "error", err)
		return fmt.Errorf("signin.Submit: %w", err)
	}
	if err := f.sessions.Login(ctx, auth.User, auth.Token); err != nil {
		f.logger.Error("login not persisted", "email", creds.Email, "error", err)
		return fmt.Errorf("signin.Submit: %w", err)
	}
	f.logger.Info("login succeeded", "email", auth.User.Email)
	return nil
}

// Message turns a Submit error into the inline text shown under the form.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var rejected *client.AuthRejectedError
	if errors.As(err, &rejected) {
		if rejected.Message != "" {
			return rejected.Message
		}
		return "Login failed"
	}
	switch {
	case errors.Is(err, ErrSubmitInProgress):
		return "Signing in..."
	case client.IsMalformed(err):
		return "Login failed"
	case client.IsNetwork(err):
		return "Network error. Please try again."
	case session.IsPersistence(err):
		return "Could not save your session. Please try again."
	}
	return "Login failed"
}
