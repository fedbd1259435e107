package main

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
)

var porchGreetings = [...]string{
	"The light is on. Nobody is home.",
	"The door is unlocked, but you still have to knock.",
	"Pull up a chair. Bring your password.",
	"The porch swing creaks. It misses you.",
	"Somebody left the mail out. It's addressed to you.",
}

func printHelp(out io.Writer) {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f5c04a")).
		Bold(true).
		Render("P O R C H")

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	commands := []struct{ cmd, desc string }{
		{"porch", "Open the app (sign in if needed)"},
		{"porch status", "Show who is signed in"},
		{"porch logout", "Clear your saved session"},
		{"porch --version", "Show version"},
		{"porch help", "You are here"},
	}

	fmt.Fprintf(out, "\n  %s\n\n  Commands:\n", title)
	for _, c := range commands {
		fmt.Fprintf(out, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-18s", c.cmd)), descStyle.Render(c.desc))
	}

	envStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	fmt.Fprintf(out, "\n  Environment:\n")
	for _, e := range []string{
		"PORCH_API_URL", "PORCH_STORE", "PORCH_DATA_DIR", "PORCH_REDIS_ADDR",
		"PORCH_LOG_FILE", "PORCH_LOG_LEVEL", "PORCH_REQUEST_TIMEOUT",
	} {
		fmt.Fprintf(out, "    %s\n", envStyle.Render(e))
	}
	fmt.Fprintln(out)
}

func printLoggedOut(out io.Writer) {
	msg := porchGreetings[rand.IntN(len(porchGreetings))]

	quote := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render(msg)

	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("To sign in: porch")

	fmt.Fprintf(out, "Not logged in.\n\n%s\n%s\n", quote, hint)
}
