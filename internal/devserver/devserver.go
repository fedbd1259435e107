// Package devserver is a local stand-in for the porch backend. It serves
// POST /authenticate and GET /home-data with bcrypt-checked passwords and
// HS256 tokens, so the client can be run end to end without the real API.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/naveenspark/porch/pkg/domain"
)

const issuer = "porch-devserver"

// Defaults for token lifetimes.
const (
	DefaultTokenTTL    = time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

var (
	// ErrUserExists is returned by AddUser for a duplicate email.
	ErrUserExists = errors.New("devserver: user already exists")
	// ErrUnknownUser is returned for an email with no account.
	ErrUnknownUser = errors.New("devserver: unknown user")
)

// Config configures a Server.
type Config struct {
	// Secret signs tokens. At least 32 bytes.
	Secret      []byte
	TokenTTL    time.Duration
	RememberTTL time.Duration
	Logger      *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type account struct {
	user     domain.User
	hash     []byte
	disabled bool
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Server holds accounts and home items in memory.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	accounts map[string]*account // by lowercased email
	items    []domain.HomeItem
}

// New validates cfg and returns an empty Server.
func New(cfg Config) (*Server, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("devserver: secret must be at least 32 bytes")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.RememberTTL == 0 {
		cfg.RememberTTL = DefaultRememberTTL
	}
	if cfg.TokenTTL < 0 || cfg.RememberTTL < 0 {
		return nil, errors.New("devserver: token lifetimes must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{cfg: cfg, logger: logger, accounts: make(map[string]*account)}, nil
}

// AddUser creates an account with a bcrypt-hashed password.
func (s *Server) AddUser(email, name, password string) (domain.User, error) {
	u := domain.User{Email: strings.TrimSpace(email), ID: uuid.NewString(), Name: name}
	if err := u.Validate(); err != nil {
		return domain.User{}, fmt.Errorf("devserver.AddUser: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("devserver.AddUser: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.accounts[key]; ok {
		return domain.User{}, ErrUserExists
	}
	s.accounts[key] = &account{user: u, hash: hash}
	return u, nil
}

// DisableUser makes every token for email answer 403 on /home-data.
func (s *Server) DisableUser(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return ErrUnknownUser
	}
	acct.disabled = true
	return nil
}

// AddItem appends an item to the home feed, newest last.
func (s *Server) AddItem(title, body string) domain.HomeItem {
	it := domain.HomeItem{ID: uuid.NewString(), Title: title, Body: body, CreatedAt: s.cfg.Now().UTC()}
	s.mu.Lock()
	s.items = append(s.items, it)
	s.mu.Unlock()
	return it
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	r.HandleFunc("/home-data", s.handleHomeData).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
	return r
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	s.mu.RLock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(creds.Email))]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(creds.Password)) != nil {
		s.logger.Info("authenticate rejected", "email", creds.Email)
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	token, err := s.IssueToken(acct.user, creds.RememberMe)
	if err != nil {
		s.logger.Error("issue token", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Could not issue token.")
		return
	}
	s.logger.Info("authenticated", "email", acct.user.Email, "remember_me", creds.RememberMe)
	writeJSON(w, http.StatusOK, map[string]string{
		"Token": token,
		"email": acct.user.Email,
		"id":    acct.user.ID,
		"name":  acct.user.Name,
	})
}

func (s *Server) handleHomeData(w http.ResponseWriter, r *http.Request) {
	c, err := s.verifyRequest(r)
	if err != nil {
		s.logger.Info("home-data rejected", "error", err)
		writeMessage(w, http.StatusUnauthorized, "Invalid or expired token.")
		return
	}

	s.mu.RLock()
	acct, ok := s.accounts[strings.ToLower(c.Email)]
	disabled := ok && acct.disabled
	var greetName string
	if ok {
		greetName = acct.user.Name
	}
	items := make([]domain.HomeItem, len(s.items))
	copy(items, s.items)
	s.mu.RUnlock()

	if !ok || disabled {
		writeMessage(w, http.StatusForbidden, "Account is not allowed.")
		return
	}
	if greetName == "" {
		greetName = c.Email
	}
	writeJSON(w, http.StatusOK, domain.HomeData{Greeting: "Hello, " + greetName, Items: items})
}

// IssueToken signs a token for u. rememberMe selects the longer lifetime.
func (s *Server) IssueToken(u domain.User, rememberMe bool) (string, error) {
	ttl := s.cfg.TokenTTL
	if rememberMe {
		ttl = s.cfg.RememberTTL
	}
	now := s.cfg.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := tok.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("devserver.IssueToken: %w", err)
	}
	return signed, nil
}

func (s *Server) verifyRequest(r *http.Request) (*claims, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing bearer token")
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
