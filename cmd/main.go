package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"

	"github.com/snapspot/snapspot-chat.git/internal/auth"
	"github.com/snapspot/snapspot-chat.git/internal/chat"
	"github.com/snapspot/snapspot-chat.git/internal/config"
	"github.com/snapspot/snapspot-chat.git/internal/directory"
	"github.com/snapspot/snapspot-chat.git/internal/handlers"
	"github.com/snapspot/snapspot-chat.git/internal/presence"
	"github.com/snapspot/snapspot-chat.git/internal/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat server terminated: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	// Synchronous writes: a message must be on disk before the router
	// reports it delivered or the handler echoes it back.
	db, err := badger.Open(badger.
		DefaultOptions(cfg.BadgerFilepath).
		WithSyncWrites(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("open badger: %w", err)
	}
	defer db.Close()

	messages, err := store.NewMessageStore(db, log)
	if err != nil {
		return exitRuntime, err
	}
	defer messages.Close()

	registry := presence.NewRegistry()
	router := chat.NewRouter(messages, registry, log)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	gateway := chat.NewGateway(registry, router, verifier, log)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h := handlers.New(messages, router, registry, gateway, directory.StaticResolver{}, verifier, log, cfg.SessionBuffer)
	h.Register(app)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	errChan := make(chan error, 1)
	go func() { errChan <- app.Listen(addr) }()
	log.Info("chat server listening", "addr", addr)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return exitRuntime, err
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		return exitRuntime, fmt.Errorf("shutdown: %w", err)
	}
	return exitOK, nil
}
