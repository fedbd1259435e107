package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/porch/pkg/domain"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20 // 1 MB

// Sessions is the view of the session store the client needs.
type Sessions interface {
	Current() domain.Session
	// Expire logs out the session identified by epoch, if it is still current.
	Expire(ctx context.Context, epoch uint64) bool
}

// AuthMode declares whether a call needs the session token.
type AuthMode int

const (
	// AuthRequired refuses the call when logged out.
	AuthRequired AuthMode = iota
	// AuthOptional attaches the token when there is one.
	AuthOptional
	// AuthNone never attaches a token.
	AuthNone
)

// Client talks to the application backend.
type Client struct {
	baseURL    string
	sessions   Sessions
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a new API client. sessions may be nil for a client that only
// makes unauthenticated calls.
func New(baseURL string, sessions Sessions, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate exchanges credentials for a token and user. It never
// attaches a token and never touches the session.
func (c *Client) Authenticate(ctx context.Context, creds domain.Credentials) (*AuthResponse, error) {
	res := c.Call(ctx, http.MethodPost, "/authenticate", creds, AuthNone)
	switch {
	case res.Kind == ResultOK:
	case res.Kind == ResultRequestFailed && res.StatusCode != 0:
		return nil, fmt.Errorf("client.Authenticate: %w", &AuthRejectedError{StatusCode: res.StatusCode, Message: res.Message})
	default:
		return nil, fmt.Errorf("client.Authenticate: %w", res.Err)
	}

	auth, err := parseAuthResponse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("client.Authenticate: %w", err)
	}
	return auth, nil
}

// GetHomeData fetches the home screen payload.
func (c *Client) GetHomeData(ctx context.Context) Result {
	return c.Call(ctx, http.MethodGet, "/home-data", nil, AuthRequired)
}

// Call sends one request and classifies the outcome. A 401 or 403 on a call
// that carried the session token expires that session. Call never retries.
func (c *Client) Call(ctx context.Context, method, path string, body any, auth AuthMode) Result {
	var sess domain.Session
	if auth != AuthNone && c.sessions != nil {
		sess = c.sessions.Current()
	}
	if auth == AuthRequired && !sess.IsAuthenticated() {
		return Result{Kind: ResultUnauthenticated}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{Kind: ResultRequestFailed, Err: fmt.Errorf("marshal body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return Result{Kind: ResultRequestFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.IsAuthenticated() {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "error", err)
		return Result{Kind: ResultNetworkError, Err: &NetworkError{Err: err}}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	// The status alone decides a rejected token; the body is not needed.
	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && sess.IsAuthenticated() {
		return c.expire(ctx, sess, method, path, resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{Kind: ResultNetworkError, StatusCode: resp.StatusCode, Err: &NetworkError{Err: fmt.Errorf("read body: %w", err)}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(respBody)
		if msg == "" && len(respBody) > 0 {
			c.logger.Debug("unrecognized error body", "method", method, "path", path, "body", truncate(respBody, 200))
		}
		c.logger.Info("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return Result{
			Kind:       ResultRequestFailed,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        &HTTPError{StatusCode: resp.StatusCode, Message: msg},
		}
	}

	if sess.IsAuthenticated() && c.sessions.Current().Epoch != sess.Epoch {
		return Result{Kind: ResultStale, StatusCode: resp.StatusCode}
	}
	return Result{Kind: ResultOK, StatusCode: resp.StatusCode, Body: respBody}
}

func (c *Client) expire(ctx context.Context, sess domain.Session, method, path string, status int) Result {
	// The logout must finish even if the caller's context is already done.
	if !c.sessions.Expire(context.WithoutCancel(ctx), sess.Epoch) {
		// The session moved on while this request was in flight.
		return Result{Kind: ResultStale, StatusCode: status}
	}
	c.logger.Info("session rejected by server", "method", method, "path", path, "status", status)
	return Result{Kind: ResultSessionExpired, StatusCode: status, Err: ErrSessionExpired}
}

// errorMessage extracts a server-provided message from a JSON error body.
// Anything else yields "" so callers show their own text.
func errorMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "")
}

// AuthResponse is a successful authentication: the token and the user the
// server returned alongside it.
type AuthResponse struct {
	Token string
	User  *domain.User
}

// parseAuthResponse requires the token under the exact field name "Token".
// encoding/json matches field names case-insensitively, so the lookup is
// done on the raw object.
func parseAuthResponse(body []byte) (*AuthResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rawToken, ok := fields["Token"]
	if !ok {
		return nil, fmt.Errorf("%w: missing Token", ErrMalformedResponse)
	}
	var token string
	if err := json.Unmarshal(rawToken, &token); err != nil || token == "" {
		return nil, fmt.Errorf("%w: Token is not a non-empty string", ErrMalformedResponse)
	}

	var user domain.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &AuthResponse{Token: token, User: &user}, nil
}

// IsMalformed reports whether err is a malformed authentication response.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
