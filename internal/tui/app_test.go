package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/porch/internal/session"
	"github.com/naveenspark/porch/pkg/client"
	"github.com/naveenspark/porch/pkg/domain"
	"github.com/naveenspark/porch/pkg/kv"
)

// storeSubmitter logs the store in the way signin.Flow does on success.
type storeSubmitter struct {
	store *session.Store
	err   error
}

func (s *storeSubmitter) Submit(ctx context.Context, creds domain.Credentials) error {
	if s.err != nil {
		return s.err
	}
	return s.store.Login(ctx, &domain.User{Email: creds.Email}, "tok-"+creds.Email)
}

func newTestApp(t *testing.T, mem *kv.MemoryStore, f homeFetcher) (App, *session.Store) {
	t.Helper()
	if mem == nil {
		mem = kv.NewMemoryStore()
	}
	store := session.New(mem)
	a := newApp(store, f, &storeSubmitter{store: store}, AppConfig{Version: "v1.2.3"})
	model, _ := a.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return model.(App), store
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	model, cmd := a.Update(msg)
	return model.(App), cmd
}

func hydrateApp(t *testing.T, a App) (App, tea.Cmd) {
	t.Helper()
	return update(t, a, a.hydrate()())
}

func seedSession(t *testing.T, mem *kv.MemoryStore, email string) {
	t.Helper()
	raw, err := domain.EncodeUser(&domain.User{Email: email})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := mem.Set(ctx, session.DefaultTokenKey, "saved-token"); err != nil {
		t.Fatal(err)
	}
	if err := mem.Set(ctx, session.DefaultUserKey, raw); err != nil {
		t.Fatal(err)
	}
}

func TestAppStartsOnLoginBeforeHydration(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	if a.view != viewLogin {
		t.Fatalf("view = %d, want login", a.view)
	}
	view := a.View()
	if !strings.Contains(view, "Sign in") {
		t.Errorf("expected login screen, got:\n%s", view)
	}
	if !strings.Contains(view, "restoring session...") {
		t.Errorf("expected restore hint before hydration, got:\n%s", view)
	}
	if !strings.Contains(view, "v1.2.3") {
		t.Errorf("expected version in header, got:\n%s", view)
	}
}

func TestAppHydrateWithoutSavedSessionStaysOnLogin(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	a, cmd := hydrateApp(t, a)
	if a.view != viewLogin {
		t.Errorf("view = %d, want login", a.view)
	}
	if cmd != nil {
		t.Error("expected no cmd when nothing was restored")
	}
	if strings.Contains(a.View(), "restoring session...") {
		t.Errorf("restore hint should be gone after hydration, got:\n%s", a.View())
	}
}

func TestAppHydrateRestoresHome(t *testing.T) {
	mem := kv.NewMemoryStore()
	seedSession(t, mem, "saved@y.com")
	f := &fakeFetcher{result: okResult(`{"items":[{"id":"1","title":"Restored item"}]}`)}
	a, _ := newTestApp(t, mem, f)

	a, cmd := hydrateApp(t, a)
	if a.view != viewHome {
		t.Fatalf("view = %d, want home", a.view)
	}
	if !strings.Contains(a.View(), "saved@y.com") {
		t.Errorf("expected restored email, got:\n%s", a.View())
	}
	if cmd == nil {
		t.Fatal("expected home load cmd")
	}
	a, _ = update(t, a, cmd())
	if !strings.Contains(a.View(), "Restored item") {
		t.Errorf("expected home data, got:\n%s", a.View())
	}
}

func TestAppCorruptSavedSessionShowsLogin(t *testing.T) {
	mem := kv.NewMemoryStore()
	ctx := context.Background()
	if err := mem.Set(ctx, session.DefaultTokenKey, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := mem.Set(ctx, session.DefaultUserKey, "[object Object]"); err != nil {
		t.Fatal(err)
	}
	a, _ := newTestApp(t, mem, nil)

	a, _ = hydrateApp(t, a)
	if a.view != viewLogin {
		t.Fatalf("view = %d, want login", a.view)
	}
	if !strings.Contains(a.View(), "unreadable") {
		t.Errorf("expected corrupt session notice, got:\n%s", a.View())
	}
	if mem.Len() != 0 {
		t.Errorf("corrupt keys left in store: %d", mem.Len())
	}
}

func TestAppLoginSwitchesToHome(t *testing.T) {
	f := &fakeFetcher{result: okResult(`{"items":[]}`)}
	a, store := newTestApp(t, nil, f)
	a, _ = hydrateApp(t, a)

	for _, r := range "x@y.com" {
		a, _ = update(t, a, keyRunes(string(r)))
	}
	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyTab})
	for _, r := range "abcd" {
		a, _ = update(t, a, keyRunes(string(r)))
	}
	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected submit cmd")
	}
	a, cmd = update(t, a, cmd())

	if !store.Current().IsAuthenticated() {
		t.Fatal("store not logged in")
	}
	if a.view != viewHome {
		t.Fatalf("view = %d, want home", a.view)
	}
	if !strings.Contains(a.View(), "Welcome!") || !strings.Contains(a.View(), "x@y.com") {
		t.Errorf("expected welcome, got:\n%s", a.View())
	}
	if cmd == nil {
		t.Error("expected home load cmd after login")
	}
}

func TestAppLoginFailureStaysOnLogin(t *testing.T) {
	a, store := newTestApp(t, nil, nil)
	a.flow = &storeSubmitter{store: store, err: &client.AuthRejectedError{StatusCode: 401, Message: "Wrong password"}}
	a.login = newLoginModel(a.flow)

	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	a, _ = update(t, a, cmd())
	if a.view != viewLogin {
		t.Errorf("view = %d, want login", a.view)
	}
	if !strings.Contains(a.View(), "Wrong password") {
		t.Errorf("expected server message, got:\n%s", a.View())
	}
}

func TestAppLogoutReturnsToLogin(t *testing.T) {
	a, store := newTestApp(t, nil, nil)
	ctx := context.Background()
	if err := store.Login(ctx, &domain.User{Email: "x@y.com"}, "tok"); err != nil {
		t.Fatal(err)
	}
	a, _ = update(t, a, sessionChangedMsg{Session: store.Current(), Reason: session.ReasonLogin})
	if a.view != viewHome {
		t.Fatalf("view = %d, want home", a.view)
	}

	a, cmd := update(t, a, keyRunes("l"))
	a, _ = update(t, a, cmd())
	if store.Current().IsAuthenticated() {
		t.Error("store still logged in")
	}
	if a.view != viewLogin {
		t.Errorf("view = %d, want login", a.view)
	}
	if a.login.email != "" || a.login.password != "" {
		t.Error("login form should start empty after logout")
	}
}

func TestAppForcedExpiryRedirectsWithoutBanner(t *testing.T) {
	a, store := newTestApp(t, nil, nil)
	ctx := context.Background()
	if err := store.Login(ctx, &domain.User{Email: "x@y.com"}, "tok"); err != nil {
		t.Fatal(err)
	}
	snap := store.Current()
	a, _ = update(t, a, sessionChangedMsg{Session: snap, Reason: session.ReasonLogin})

	// The client expires the session before handing back the result.
	if !store.Expire(ctx, snap.Epoch) {
		t.Fatal("Expire returned false")
	}
	a, _ = update(t, a, homeLoadedMsg{epoch: snap.Epoch, result: client.Result{Kind: client.ResultSessionExpired, StatusCode: 401}})

	if a.view != viewLogin {
		t.Fatalf("view = %d, want login", a.view)
	}
	view := a.View()
	if strings.Contains(view, homeFetchFailed) || strings.Contains(view, homeLoadFailed) {
		t.Errorf("expected no error banner, got:\n%s", view)
	}
}

func TestAppIgnoresOutOfOrderEvents(t *testing.T) {
	a, store := newTestApp(t, nil, nil)
	ctx := context.Background()
	if err := store.Login(ctx, &domain.User{Email: "x@y.com"}, "tok"); err != nil {
		t.Fatal(err)
	}
	loggedIn := store.Current()
	if err := store.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	loggedOut := store.Current()

	a, _ = update(t, a, sessionChangedMsg{Session: loggedOut, Reason: session.ReasonLogout})
	a, _ = update(t, a, sessionChangedMsg{Session: loggedIn, Reason: session.ReasonLogin})
	if a.view != viewLogin {
		t.Errorf("older login event undid a newer logout: view = %d", a.view)
	}
}

func TestAppQuitKeys(t *testing.T) {
	a, store := newTestApp(t, nil, nil)

	// On the login screen q is text.
	a, cmd := update(t, a, keyRunes("q"))
	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("q quit from the login screen")
		}
	}
	if a.login.email != "q" {
		t.Errorf("email = %q, want %q", a.login.email, "q")
	}

	_, cmd = update(t, a, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit on ctrl+c")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}

	if err := store.Login(context.Background(), &domain.User{Email: "x@y.com"}, "tok"); err != nil {
		t.Fatal(err)
	}
	a, _ = update(t, a, sessionChangedMsg{Session: store.Current(), Reason: session.ReasonLogin})
	_, cmd = update(t, a, keyRunes("q"))
	if cmd == nil {
		t.Fatal("expected quit on q from home")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit from home")
	}
}

func TestNewAppRequiresProvider(t *testing.T) {
	_, err := NewApp(context.Background(), nil, nil, AppConfig{})
	if !errors.Is(err, session.ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestNewAppFromContext(t *testing.T) {
	store := session.New(kv.NewMemoryStore())
	a, err := NewApp(session.NewContext(context.Background(), store), nil, nil, AppConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if a.view != viewLogin {
		t.Errorf("view = %d, want login", a.view)
	}

	// Enter on the login screen without a flow is a no-op.
	a, _ = hydrateApp(t, a)
	a, cmd := update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no cmd without a login flow")
	}
	if a.view != viewLogin {
		t.Errorf("view = %d, want login", a.view)
	}
}

func TestWatchSessionForwardsEvents(t *testing.T) {
	store := session.New(kv.NewMemoryStore())
	var mu sync.Mutex
	var got []tea.Msg
	stop := WatchSession(store, func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	ctx := context.Background()
	if err := store.Login(ctx, &domain.User{Email: "x@y.com"}, "tok"); err != nil {
		t.Fatal(err)
	}
	stop()
	if err := store.Logout(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	ev, ok := got[0].(sessionChangedMsg)
	if !ok {
		t.Fatalf("got %T, want sessionChangedMsg", got[0])
	}
	if ev.Reason != session.ReasonLogin || ev.Session.Email() != "x@y.com" {
		t.Errorf("event = %+v", ev)
	}
}
