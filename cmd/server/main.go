// Package main is the entry point for the autohook server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal — its job is to:
// 1. Read configuration (from env vars, flags, or config files)
// 2. Create dependencies (logger, store connections, etc.)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
// This separation makes the app testable and its components reusable.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// A project might have multiple executables (e.g., cmd/server, cmd/migrate, cmd/cli).
// Each gets its own directory with its own main.go.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sakif/autohook/internal/server"
)

func main() {
	// === 1. SET UP LOGGING ===
	// slog.New creates a structured logger. slog.NewTextHandler outputs human-readable logs.
	// os.Stdout means logs go to the terminal. slog.LevelDebug enables all log levels.
	//
	// Log levels (from least to most severe): Debug → Info → Warn → Error
	// In production, you'd use LevelInfo or LevelWarn to reduce noise.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// === 2. READ CONFIGURATION ===
	// Env vars with sane defaults. In a larger app you'd reach for a config
	// library; env vars keep deployment simple here.
	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	// === 3. STORE PATH ===
	// Default to "data/autohook.db" in the project root.
	// DB_PATH allows overriding for production deployments.
	// Example: DB_PATH=/var/lib/autohook/prod.db
	dbPath := "data/autohook.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}

	// Ensure the data directory exists (like `mkdir -p`).
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create data directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. AUTH CONFIGURATION ===
	// JWT_SECRET should be a long random string, e.g.:
	//   JWT_SECRET=$(openssl rand -hex 32)
	// If unset we generate an ephemeral one so the server still comes up,
	// but every token dies with the process — fine for development, wrong
	// for anything else.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Error("failed to generate ephemeral JWT secret", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwtSecret = hex.EncodeToString(buf)
		logger.Warn("JWT_SECRET not set — using an ephemeral secret, tokens will not survive restarts")
	}

	passwordSalt := os.Getenv("PASSWORD_SALT")
	if passwordSalt == "" {
		passwordSalt = "autohook-default-salt"
		logger.Warn("PASSWORD_SALT not set — using the built-in default")
	}

	// GITHUB_WEBHOOK_SECRET is the fallback HMAC secret for inbound
	// deliveries. Empty means unsigned deliveries are accepted.
	githubWebhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if githubWebhookSecret == "" {
		logger.Warn("GITHUB_WEBHOOK_SECRET not set — inbound deliveries without a per-webhook secret are unverified")
	}

	// === 5. CREATE AND START THE SERVER ===
	cfg := server.Config{
		Port:                port,
		DBPath:              dbPath,
		JWTSecret:           jwtSecret,
		PasswordSalt:        passwordSalt,
		GitHubWebhookSecret: githubWebhookSecret,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
