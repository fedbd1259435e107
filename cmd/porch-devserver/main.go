// Command porch-devserver runs a local backend for porch with one demo
// account, listening where the client looks by default.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/naveenspark/porch/internal/config"
	"github.com/naveenspark/porch/internal/devserver"
	"github.com/naveenspark/porch/internal/logging"
)

type serverConfig struct {
	Addr         string        `env:"DEVSERVER_ADDR"          envDefault:"localhost:3001"`
	Secret       string        `env:"DEVSERVER_SECRET"`
	TokenTTL     time.Duration `env:"DEVSERVER_TOKEN_TTL"     envDefault:"1h"`
	RememberTTL  time.Duration `env:"DEVSERVER_REMEMBER_TTL"  envDefault:"720h"`
	DemoEmail    string        `env:"DEVSERVER_DEMO_EMAIL"    envDefault:"demo@porch.dev"`
	DemoPassword string        `env:"DEVSERVER_DEMO_PASSWORD" envDefault:"porch"`
	LogLevel     string        `env:"DEVSERVER_LOG_LEVEL"     envDefault:"info"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr})

	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		// Tokens do not survive a restart without a fixed secret.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
	}

	srv, err := devserver.New(devserver.Config{
		Secret:      secret,
		TokenTTL:    cfg.TokenTTL,
		RememberTTL: cfg.RememberTTL,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if _, err := srv.AddUser(cfg.DemoEmail, "Demo", cfg.DemoPassword); err != nil {
		return err
	}
	srv.AddItem("Welcome to porch", "You are signed in against the local dev server.")
	srv.AddItem("Try the keys", "r reloads this screen, l signs you out.")

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "demo_email", cfg.DemoEmail)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpSrv.Shutdown(shutCtx)
}
