package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenspark/porch/internal/session"
	"github.com/naveenspark/porch/internal/signin"
	"github.com/naveenspark/porch/pkg/client"
	"github.com/naveenspark/porch/pkg/domain"
	"github.com/naveenspark/porch/pkg/kv"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *clock) {
	t.Helper()
	clk := &clock{now: time.Now()}
	s, err := New(Config{Secret: testSecret, TokenTTL: time.Minute, RememberTTL: time.Hour, Now: clk.Now})
	require.NoError(t, err)
	_, err = s.AddUser("x@y.com", "Xavier", "abcd")
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv, clk
}

func postAuth(t *testing.T, url string, body any) (*http.Response, map[string]string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url+"/authenticate", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getHome(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+"/home-data", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Secret: []byte("short")})
	assert.Error(t, err)

	_, err = New(Config{Secret: testSecret, TokenTTL: -time.Second})
	assert.Error(t, err)

	s, err := New(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, s.cfg.TokenTTL)
	assert.Equal(t, DefaultRememberTTL, s.cfg.RememberTTL)
}

func TestAddUser(t *testing.T) {
	s, err := New(Config{Secret: testSecret})
	require.NoError(t, err)

	u, err := s.AddUser(" a@b.io ", "", "pw12")
	require.NoError(t, err)
	assert.Equal(t, "a@b.io", u.Email)
	assert.NotEmpty(t, u.ID)

	_, err = s.AddUser("A@B.io", "", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = s.AddUser("not-an-email", "", "pw12")
	assert.Error(t, err)

	assert.ErrorIs(t, s.DisableUser("nobody@b.io"), ErrUnknownUser)
}

func TestAuthenticateSuccess(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, out := postAuth(t, srv.URL, domain.Credentials{Email: "x@y.com", Password: "abcd"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, out["Token"])
	assert.Equal(t, "x@y.com", out["email"])
	assert.NotEmpty(t, out["id"])
}

func TestAuthenticateRejects(t *testing.T) {
	_, srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"wrong password", domain.Credentials{Email: "x@y.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", domain.Credentials{Email: "z@y.com", Password: "abcd"}, http.StatusUnauthorized},
		{"missing fields", domain.Credentials{Email: "x@y.com"}, http.StatusBadRequest},
		{"not an object", []int{1, 2}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postAuth(t, srv.URL, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, out["message"])
			assert.Empty(t, out["Token"])
		})
	}
}

func TestHomeDataRequiresValidToken(t *testing.T) {
	s, srv, clk := newTestServer(t)
	s.AddItem("Welcome to porch", "first item")

	_, out := postAuth(t, srv.URL, domain.Credentials{Email: "x@y.com", Password: "abcd"})
	token := out["Token"]

	resp := getHome(t, srv.URL, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var data domain.HomeData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	assert.Equal(t, "Hello, Xavier", data.Greeting)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Welcome to porch", data.Items[0].Title)

	assert.Equal(t, http.StatusUnauthorized, getHome(t, srv.URL, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, getHome(t, srv.URL, "garbage").StatusCode)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, http.StatusUnauthorized, getHome(t, srv.URL, token).StatusCode)
}

func TestRememberMeExtendsLifetime(t *testing.T) {
	_, srv, clk := newTestServer(t)

	_, out := postAuth(t, srv.URL, domain.Credentials{Email: "x@y.com", Password: "abcd", RememberMe: true})
	clk.Advance(30 * time.Minute)
	assert.Equal(t, http.StatusOK, getHome(t, srv.URL, out["Token"]).StatusCode)
}

func TestHomeDataRejectsForeignTokens(t *testing.T) {
	_, srv, clk := newTestServer(t)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: "x@y.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	})
	signed, err := other.SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, getHome(t, srv.URL, signed).StatusCode)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:            "x@y.com",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	})
	signed, err = noExp.SignedString(testSecret)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, getHome(t, srv.URL, signed).StatusCode)
}

func TestDisabledUserGetsForbidden(t *testing.T) {
	s, srv, _ := newTestServer(t)
	_, out := postAuth(t, srv.URL, domain.Credentials{Email: "x@y.com", Password: "abcd"})

	require.NoError(t, s.DisableUser("x@y.com"))
	assert.Equal(t, http.StatusForbidden, getHome(t, srv.URL, out["Token"]).StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	_, srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/authenticate")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

// End to end: sign in through the real client, load home data, then let the
// token expire and watch the session end.
func TestClientRoundTrip(t *testing.T) {
	s, srv, clk := newTestServer(t)
	s.AddItem("Hello", "")

	store := session.New(kv.NewMemoryStore())
	var mu sync.Mutex
	var reasons []session.Reason
	store.Subscribe(func(ev session.Event) {
		mu.Lock()
		reasons = append(reasons, ev.Reason)
		mu.Unlock()
	})

	c := client.New(srv.URL, store)
	flow := signin.New(c, store, nil)
	ctx := context.Background()

	require.NoError(t, flow.Submit(ctx, domain.Credentials{Email: "x@y.com", Password: "abcd"}))
	cur := store.Current()
	require.True(t, cur.IsAuthenticated())
	assert.Equal(t, "x@y.com", cur.Email())

	res := c.GetHomeData(ctx)
	require.Equal(t, client.ResultOK, res.Kind)
	var data domain.HomeData
	require.NoError(t, res.Decode(&data))
	assert.Len(t, data.Items, 1)

	clk.Advance(2 * time.Minute)
	res = c.GetHomeData(ctx)
	assert.Equal(t, client.ResultSessionExpired, res.Kind)
	assert.False(t, store.Current().IsAuthenticated())

	res = c.GetHomeData(ctx)
	assert.Equal(t, client.ResultUnauthenticated, res.Kind)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.Reason{session.ReasonLogin, session.ReasonExpired}, reasons)
}

func TestClientWrongPassword(t *testing.T) {
	_, srv, _ := newTestServer(t)
	store := session.New(kv.NewMemoryStore())
	flow := signin.New(client.New(srv.URL, store), store, nil)

	err := flow.Submit(context.Background(), domain.Credentials{Email: "x@y.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password.", signin.Message(err))
	assert.False(t, store.Current().IsAuthenticated())
}
