package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/porch/internal/config"
	"github.com/naveenspark/porch/internal/logging"
	"github.com/naveenspark/porch/internal/session"
	"github.com/naveenspark/porch/internal/signin"
	"github.com/naveenspark/porch/internal/tui"
	"github.com/naveenspark/porch/pkg/client"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "--version", "version", "-v":
			fmt.Fprintln(out, "porch "+version)
			return nil
		case "help", "--help", "-h":
			printHelp(out)
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, logFile, err := logging.OpenFile(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer logFile.Close() //nolint:errcheck

	ctx := context.Background()
	store, closeStore, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	if len(args) > 0 {
		switch args[0] {
		case "status":
			return runStatus(ctx, store, out)
		case "logout":
			return runLogout(ctx, store, out)
		default:
			return fmt.Errorf("unknown command %q (try: porch help)", args[0])
		}
	}
	return runTUI(session.NewContext(ctx, store), cfg, logger)
}

// openSession opens the configured durable store and wraps it in a session
// store. Close the returned func on exit.
func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session.Store, func() error, error) {
	backend, closeFn, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	logger.Debug("store opened", "backend", cfg.Store, "data_dir", cfg.DataDir)
	return session.New(backend, session.WithLogger(logging.Component(logger, "session"))), closeFn, nil
}

// restore hydrates store for a one-shot command. A corrupt saved session is
// reported and treated as logged out.
func restore(ctx context.Context, store *session.Store, out io.Writer) error {
	err := store.Hydrate(ctx)
	var corrupt *session.CorruptSessionError
	if errors.As(err, &corrupt) {
		fmt.Fprintln(out, "Saved session was unreadable and has been cleared.")
		return nil
	}
	return err
}

func runStatus(ctx context.Context, store *session.Store, out io.Writer) error {
	if err := restore(ctx, store, out); err != nil {
		return fmt.Errorf("read saved session: %w", err)
	}
	cur := store.Current()
	if !cur.IsAuthenticated() {
		printLoggedOut(out)
		return nil
	}
	fmt.Fprintf(out, "Logged in as %s\n", cur.Email())
	return nil
}

func runLogout(ctx context.Context, store *session.Store, out io.Writer) error {
	if err := restore(ctx, store, out); err != nil {
		return fmt.Errorf("read saved session: %w", err)
	}
	wasIn := store.Current().IsAuthenticated()
	// Logout clears leftover keys even when nothing was restored.
	if err := store.Logout(ctx); err != nil {
		return fmt.Errorf("remove saved session: %w", err)
	}
	if !wasIn {
		fmt.Fprintln(out, "Already logged out.")
		return nil
	}
	fmt.Fprintln(out, "Logged out.")
	return nil
}

func runTUI(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store := session.MustFromContext(ctx)
	c := client.New(cfg.APIURL, store,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logging.Component(logger, "client")),
	)
	flow := signin.New(c, store, logging.Component(logger, "signin"))

	app, err := tui.NewApp(ctx, c, flow, tui.AppConfig{
		Version: version,
		Logger:  logging.Component(logger, "tui"),
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	stop := tui.WatchSession(store, p.Send)
	defer stop()

	logger.Info("starting", "version", version, "api", cfg.APIURL, "store", cfg.Store)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
