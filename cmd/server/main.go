// main is the entry point for the gatepass API server.
//
// It reads configuration from flags, a .env file and the environment,
// opens the SQLite database, wires the workflow service to the HTTP
// routes and serves until SIGINT or SIGTERM.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root", the single place where the
// independent packages (db, store, workflow, handlers) are wired
// together. Keeping this wiring in main.go means every other package
// stays easy to test in isolation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"

	"github.com/Elizabethomito/gatepass/internal/auth"
	"github.com/Elizabethomito/gatepass/internal/clock"
	"github.com/Elizabethomito/gatepass/internal/config"
	"github.com/Elizabethomito/gatepass/internal/db"
	"github.com/Elizabethomito/gatepass/internal/handlers"
	"github.com/Elizabethomito/gatepass/internal/live"
	"github.com/Elizabethomito/gatepass/internal/logging"
	"github.com/Elizabethomito/gatepass/internal/notify"
	"github.com/Elizabethomito/gatepass/internal/seed"
	"github.com/Elizabethomito/gatepass/internal/store"
	"github.com/Elizabethomito/gatepass/internal/workflow"
)

func main() {
	addr := pflag.String("addr", "", "listen address (overrides ADDR)")
	envFile := pflag.String("env-file", ".env", "dotenv file read before the environment")
	seedDemo := pflag.Bool("seed", false, "load the demo users and visitor requests on startup")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pflag.Parse()

	// ── Configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, level, cfg.LogFormat)
	slog.SetDefault(log)
	if cfg.DefaultSecret() {
		log.Warn("JWT_SECRET is not set; using the development secret")
	}

	if err := run(cfg, log, *seedDemo); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, seedDemo bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	st := store.New(database)

	clk := clock.Real()

	// ── Token revocation ─────────────────────────────────────────────
	// With Redis, logouts survive restarts and are shared between
	// replicas. Without it they live in process memory.
	var revoker auth.Revoker = auth.NewMemoryRevoker(clk.Now)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		revoker = auth.NewRedisRevoker(rdb, clk.Now)
		log.Info("token revocation backed by redis", "addr", cfg.RedisAddr)
	}

	// ── Notifications ────────────────────────────────────────────────
	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	switch {
	case cfg.SMTPEnabled():
		notifier = notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
		log.Info("mail via smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	case cfg.MailAPIURL != "":
		notifier = notify.NewGatewayNotifier(cfg.MailAPIURL, cfg.MailAPIKey)
		log.Info("mail via http gateway", "url", cfg.MailAPIURL)
	default:
		log.Info("mail delivery disabled; notifications are logged")
	}

	hub := live.NewHub(log, cfg.CORSOrigin)
	svc := workflow.New(workflow.Deps{
		Store:          st,
		Tokens:         auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		Revoker:        revoker,
		Clock:          clk,
		Log:            log,
		Notifier:       notifier,
		Hub:            hub,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		BcryptCost:     cfg.BcryptCost,
	})
	defer svc.Close()
	defer hub.Close()

	if cfg.BootstrapAdminEmail != "" {
		if _, err := svc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	if seedDemo {
		fx, err := seed.Demo()
		if err != nil {
			return fmt.Errorf("load demo fixture: %w", err)
		}
		res, err := seed.Apply(ctx, st, fx, clk.Now(), cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		log.Info("demo data loaded", "users", res.Users, "visitors", res.Visitors)
	}

	// ── HTTP ─────────────────────────────────────────────────────────
	srv := &handlers.Server{Svc: svc, Hub: hub, Log: log, CORSOrigin: cfg.CORSOrigin}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("gatepass API listening", "addr", cfg.Addr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown, so the
	// hub closes them itself.
	hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
