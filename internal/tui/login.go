package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/porch/internal/signin"
	"github.com/naveenspark/porch/pkg/domain"
)

type loginField int

const (
	fieldEmail loginField = iota
	fieldPassword
	fieldRemember
	numLoginFields
)

// readClipboard is swapped out in tests.
var readClipboard = clipboard.ReadAll

// submitter is the part of signin.Flow the login screen drives.
type submitter interface {
	Submit(ctx context.Context, creds domain.Credentials) error
}

type loginDoneMsg struct {
	err error
}

type loginModel struct {
	flow       submitter
	email      string
	password   string
	rememberMe bool
	focus      loginField
	submitting bool
	statusMsg  string
	width      int
	height     int
}

func newLoginModel(flow submitter) loginModel {
	return loginModel{flow: flow}
}

func (m loginModel) Init() tea.Cmd {
	return nil
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case loginDoneMsg:
		m.submitting = false
		// On success the root model swaps this screen out.
		m.statusMsg = signin.Message(msg.err)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m loginModel) updateKeys(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.submit()
	case "tab", "down":
		m.focus = (m.focus + 1) % numLoginFields
	case "shift+tab", "up":
		m.focus = (m.focus - 1 + numLoginFields) % numLoginFields
	case "ctrl+v":
		text, err := readClipboard()
		if err != nil || text == "" {
			return m, nil
		}
		switch m.focus {
		case fieldEmail:
			m.email = pasteInto(m.email, text)
		case fieldPassword:
			m.password = pasteInto(m.password, text)
		}
	case " ":
		if m.focus == fieldRemember {
			m.rememberMe = !m.rememberMe
			return m, nil
		}
		m.editFocused(" ")
	default:
		m.editFocused(msg.String())
	}
	return m, nil
}

func (m *loginModel) editFocused(key string) {
	switch m.focus {
	case fieldEmail:
		m.email = editRune(m.email, key)
	case fieldPassword:
		m.password = editRune(m.password, key)
	}
}

func (m loginModel) submit() (loginModel, tea.Cmd) {
	if m.submitting || m.flow == nil {
		return m, nil
	}
	m.submitting = true
	m.statusMsg = ""

	flow := m.flow
	creds := domain.Credentials{
		Email:      m.email,
		Password:   m.password,
		RememberMe: m.rememberMe,
	}
	return m, func() tea.Msg {
		return loginDoneMsg{err: flow.Submit(context.Background(), creds)}
	}
}

func (m loginModel) View() string {
	var b strings.Builder

	b.WriteString(" " + selectedStyle.Render("Sign in") + "\n\n")

	rows := []struct {
		field loginField
		label string
		value string
	}{
		{fieldEmail, "email", m.email},
		{fieldPassword, "password", mask(m.password)},
	}
	for _, r := range rows {
		cursor := " "
		style := metaStyle
		value := r.value
		if r.field == m.focus {
			cursor = accentStyle.Render(">")
			style = selectedStyle
			value += "█"
		} else if value == "" {
			value = inputPlaceholderStyle.Render("-")
		}
		fmt.Fprintf(&b, " %s %s %s\n", cursor, style.Render(fmt.Sprintf("%-9s", r.label+":")), value)
	}

	cursor := " "
	style := metaStyle
	if m.focus == fieldRemember {
		cursor = accentStyle.Render(">")
		style = selectedStyle
	}
	check := "[ ]"
	if m.rememberMe {
		check = accentStyle.Render("[x]")
	}
	fmt.Fprintf(&b, " %s %s %s\n", cursor, check, style.Render("remember me"))

	b.WriteString("\n")
	if m.submitting {
		b.WriteString(" " + dimStyle.Render("Signing in..."))
	} else if m.statusMsg != "" {
		b.WriteString(" " + errorStyle.Render(m.statusMsg))
	}

	return b.String()
}

func (m loginModel) helpKeys() string {
	return helpEntry("tab", "next") + "  " + helpEntry("space", "remember") + "  " +
		helpEntry("ctrl+v", "paste") + "  " + helpEntry("enter", "sign in") + "  " +
		helpEntry("ctrl+c", "quit")
}
