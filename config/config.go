// Package config loads bookshare settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const devJWTSecret = "bookshare-dev-secret"

type App struct {
	DBDriver      string
	DBDSN         string
	HTTPAddr      string
	JWTSecret     string
	TokenTTLHours int
	EmailDomain   string
	LogLevel      slog.Level
	AdminEmail    string
	AdminPassword string
}

// Load reads .env files when present, then the BOOKSHARE_* variables.
func Load(files ...string) (App, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return App{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := App{
		DBDriver:      getenv("BOOKSHARE_DB_DRIVER", "sqlite3"),
		DBDSN:         getenv("BOOKSHARE_DB_DSN", "bookshare.db"),
		HTTPAddr:      getenv("BOOKSHARE_HTTP_ADDR", ":8080"),
		JWTSecret:     getenv("BOOKSHARE_JWT_SECRET", devJWTSecret),
		EmailDomain:   getenv("BOOKSHARE_EMAIL_DOMAIN", "dainam.edu.vn"),
		AdminEmail:    os.Getenv("BOOKSHARE_ADMIN_EMAIL"),
		AdminPassword: os.Getenv("BOOKSHARE_ADMIN_PASSWORD"),
	}

	ttl, err := strconv.Atoi(getenv("BOOKSHARE_TOKEN_TTL_HOURS", "72"))
	if err != nil || ttl <= 0 {
		return App{}, fmt.Errorf("BOOKSHARE_TOKEN_TTL_HOURS must be a positive integer")
	}
	cfg.TokenTTLHours = ttl

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("BOOKSHARE_LOG_LEVEL", "info"))); err != nil {
		return App{}, fmt.Errorf("BOOKSHARE_LOG_LEVEL: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite3", "pgx":
	default:
		return App{}, fmt.Errorf("BOOKSHARE_DB_DRIVER %q: want sqlite3 or pgx", cfg.DBDriver)
	}
	return cfg, nil
}

// UsesDevSecret reports whether tokens would be signed with the built-in key.
func (a App) UsesDevSecret() bool { return a.JWTSecret == devJWTSecret }

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
