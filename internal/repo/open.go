package repo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver      string
	DatabaseURL string
	Schema      string
	SQLitePath  string
}

// Open connects to the backend named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "postgres", "postgresql":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return New(ctx, opts.DatabaseURL, opts.Schema, logger)
	case "sqlite":
		return NewSQLite(ctx, opts.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}
