package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/porch/pkg/client"
	"github.com/naveenspark/porch/pkg/domain"
)

// Home screen error lines.
const (
	homeFetchFailed = "Failed to fetch home data."
	homeLoadFailed  = "Failed to load home data."
)

// homeFetcher loads the authenticated home payload.
type homeFetcher interface {
	GetHomeData(ctx context.Context) client.Result
}

// sessionEnder ends the current session.
type sessionEnder interface {
	Logout(ctx context.Context) error
}

type homeLoadedMsg struct {
	epoch  uint64
	result client.Result
}

type logoutDoneMsg struct {
	err error
}

type homeModel struct {
	client     homeFetcher
	sessions   sessionEnder
	email      string
	epoch      uint64
	data       *domain.HomeData
	loading    bool
	loggingOut bool
	err        string
	width      int
	height     int
}

func newHomeModel(c homeFetcher, sessions sessionEnder, sess domain.Session) homeModel {
	return homeModel{
		client:   c,
		sessions: sessions,
		email:    sess.Email(),
		epoch:    sess.Epoch,
		loading:  c != nil,
	}
}

func (m homeModel) Init() tea.Cmd {
	return m.load()
}

func (m homeModel) load() tea.Cmd {
	c := m.client
	if c == nil {
		return nil
	}
	epoch := m.epoch
	return func() tea.Msg {
		return homeLoadedMsg{epoch: epoch, result: c.GetHomeData(context.Background())}
	}
}

func (m homeModel) logout() tea.Cmd {
	s := m.sessions
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		return logoutDoneMsg{err: s.Logout(context.Background())}
	}
}

func (m homeModel) Update(msg tea.Msg) (homeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case homeLoadedMsg:
		if msg.epoch != m.epoch {
			// Loaded for a session that is no longer current.
			return m, nil
		}
		m.loading = false
		res := msg.result
		switch res.Kind {
		case client.ResultOK:
			var data domain.HomeData
			if err := res.Decode(&data); err != nil {
				m.err = homeFetchFailed
				return m, nil
			}
			m.data = &data
			m.err = ""
		case client.ResultRequestFailed:
			m.err = homeFetchFailed
		case client.ResultNetworkError:
			m.err = homeLoadFailed
		}
		// Expired, unauthenticated and stale results show nothing here; the
		// root model moves to the login screen when the session ends.
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.loggingOut {
			return m, nil
		}
		switch msg.String() {
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			m.err = ""
			return m, m.load()
		case "l":
			m.loggingOut = true
			return m, m.logout()
		}
	}
	return m, nil
}

func (m homeModel) View() string {
	var sb strings.Builder

	sb.WriteString(" " + goldStyle.Render("Welcome!") + " " + selectedStyle.Render(m.email) + "\n\n")

	switch {
	case m.loggingOut:
		sb.WriteString(" " + dimStyle.Render("signing out..."))
		return sb.String()
	case m.loading && m.data == nil:
		sb.WriteString(" " + dimStyle.Render("loading..."))
		return sb.String()
	case m.err != "":
		sb.WriteString(" " + errorStyle.Render(m.err))
		return sb.String()
	case m.data == nil:
		return sb.String()
	}

	if m.data.Greeting != "" {
		sb.WriteString(" " + normalStyle.Render(oneLine(m.data.Greeting)) + "\n\n")
	}
	if len(m.data.Items) == 0 {
		sb.WriteString(" " + dimStyle.Render("nothing here yet"))
		return sb.String()
	}

	titleWidth := m.width - 16
	if titleWidth < 20 {
		titleWidth = 20
	}
	for _, it := range m.data.Items {
		fmt.Fprintf(&sb, " %s  %s\n",
			metaStyle.Render(fmt.Sprintf("%8s", formatTime(it.CreatedAt))),
			normalStyle.Render(truncStr(oneLine(it.Title), titleWidth)))
		if it.Body != "" {
			fmt.Fprintf(&sb, " %s  %s\n", strings.Repeat(" ", 8), dimStyle.Render(truncStr(oneLine(it.Body), titleWidth)))
		}
	}
	return sb.String()
}

func (m homeModel) helpKeys() string {
	return helpEntry("r", "reload") + "  " + helpEntry("l", "log out") + "  " + helpEntry("q", "quit")
}
