// Package tui is the porch terminal UI: a login screen while logged out and
// a home screen while logged in, switched by session events.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/porch/internal/session"
	"github.com/naveenspark/porch/internal/signin"
	"github.com/naveenspark/porch/pkg/client"
	"github.com/naveenspark/porch/pkg/domain"
)

type view int

const (
	viewLogin view = iota
	viewHome
)

// chrome is header(2) + blank(1) + blank(1) + help(1).
const chrome = 5

// sessionSource is the part of session.Store the root model uses.
type sessionSource interface {
	Current() domain.Session
	Hydrate(ctx context.Context) error
	Logout(ctx context.Context) error
}

// hydratedMsg reports the startup restore.
type hydratedMsg struct {
	err error
}

// sessionChangedMsg carries a store transition into the program.
type sessionChangedMsg session.Event

// AppConfig holds optional App settings.
type AppConfig struct {
	Version string
	Logger  *slog.Logger
}

// App is the root Bubbletea model.
type App struct {
	sessions sessionSource
	client   homeFetcher
	flow     submitter
	logger   *slog.Logger
	version  string

	session  domain.Session
	hydrated bool
	notice   string
	view     view
	login    loginModel
	home     homeModel
	width    int
	height   int
	frame    int // logo shimmer animation frame
}

// NewApp creates the TUI for the session store carried by ctx. It fails with
// session.ErrNoProvider when ctx has none.
func NewApp(ctx context.Context, c *client.Client, flow *signin.Flow, cfg AppConfig) (App, error) {
	store, err := session.FromContext(ctx)
	if err != nil {
		return App{}, fmt.Errorf("tui.NewApp: %w", err)
	}
	var fetcher homeFetcher
	if c != nil {
		fetcher = c
	}
	var sub submitter
	if flow != nil {
		sub = flow
	}
	return newApp(store, fetcher, sub, cfg), nil
}

func newApp(sessions sessionSource, c homeFetcher, flow submitter, cfg AppConfig) App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return App{
		sessions: sessions,
		client:   c,
		flow:     flow,
		logger:   logger,
		version:  cfg.Version,
		login:    newLoginModel(flow),
	}
}

// WatchSession forwards every store transition to send, usually a running
// tea.Program's Send. Call the returned func to stop.
func WatchSession(store *session.Store, send func(tea.Msg)) (stop func()) {
	return store.Subscribe(func(ev session.Event) {
		send(sessionChangedMsg(ev))
	})
}

func (a App) Init() tea.Cmd {
	return tea.Batch(shimmerTickCmd(), a.hydrate())
}

func (a App) hydrate() tea.Cmd {
	s := a.sessions
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		return hydratedMsg{err: s.Hydrate(context.Background())}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		body := a.bodySize()
		a.login, _ = a.login.Update(body)
		a.home, _ = a.home.Update(body)
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case hydratedMsg:
		a.hydrated = true
		var corrupt *session.CorruptSessionError
		switch {
		case msg.err == nil, errors.Is(msg.err, session.ErrAlreadyHydrated):
		case errors.As(msg.err, &corrupt):
			a.logger.Warn("saved session discarded", "error", msg.err)
			a.notice = "Your saved session was unreadable. Please sign in again."
		default:
			a.logger.Error("restore session", "error", msg.err)
			a.notice = "Could not read your saved session."
		}
		return a.sync(a.current())

	case sessionChangedMsg:
		return a.sync(msg.Session)

	case loginDoneMsg:
		a.login, _ = a.login.Update(msg)
		if msg.err == nil {
			a.notice = ""
			return a.sync(a.current())
		}
		return a, nil

	case logoutDoneMsg:
		if msg.err != nil {
			// The session is cleared in memory even when a key survives on disk.
			a.logger.Warn("logout left stored keys behind", "error", msg.err)
		}
		return a.sync(a.current())

	case homeLoadedMsg:
		var cmd tea.Cmd
		a.home, cmd = a.home.Update(msg)
		if msg.result.Kind == client.ResultSessionExpired {
			return a.sync(a.current())
		}
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			// Login fields take every printable key.
			if a.view == viewHome {
				return a, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	switch a.view {
	case viewLogin:
		a.login, cmd = a.login.Update(msg)
	case viewHome:
		a.home, cmd = a.home.Update(msg)
	}
	return a, cmd
}

func (a App) current() domain.Session {
	if a.sessions == nil {
		return domain.Session{}
	}
	return a.sessions.Current()
}

// sync moves the screens to match snap. Snapshots older than the one already
// applied are dropped, so events delivered out of order cannot undo a newer
// transition.
func (a App) sync(snap domain.Session) (App, tea.Cmd) {
	if snap.Epoch < a.session.Epoch {
		return a, nil
	}
	prev := a.session
	a.session = snap

	if snap.IsAuthenticated() {
		if a.view == viewHome && prev.Epoch == snap.Epoch {
			return a, nil
		}
		a.view = viewHome
		a.home = newHomeModel(a.client, a.sessions, snap)
		a.home, _ = a.home.Update(a.bodySize())
		return a, a.home.Init()
	}

	if a.view != viewLogin {
		a.logger.Info("showing login", "epoch", snap.Epoch)
		a.view = viewLogin
		a.login = newLoginModel(a.flow)
		a.login, _ = a.login.Update(a.bodySize())
	}
	return a, nil
}

func (a App) bodySize() tea.WindowSizeMsg {
	return tea.WindowSizeMsg{Width: a.width, Height: a.height - chrome}
}

func (a App) View() string {
	header := center(renderShimmerLogo(a.frame), a.width)
	if a.version != "" {
		header += "\n" + center(metaStyle.Render(a.version), a.width)
	} else {
		header += "\n"
	}

	var body, help string
	switch a.view {
	case viewLogin:
		body = a.login.View()
		if a.login.statusMsg == "" && !a.login.submitting {
			switch {
			case !a.hydrated && a.sessions != nil:
				body += " " + dimStyle.Render("restoring session...")
			case a.notice != "":
				body += " " + dimStyle.Render(a.notice)
			}
		}
		help = " " + a.login.helpKeys()
	case viewHome:
		body = a.home.View()
		help = " " + a.home.helpKeys()
	}

	body = strings.TrimRight(truncateToHeight(body, a.height-chrome), "\n")
	return fmt.Sprintf("%s\n\n%s\n\n%s", header, body, help)
}
