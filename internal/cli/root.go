// Package cli implements the fixshopctl admin commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"fixshop/internal/config"
	"fixshop/internal/logging"
	"fixshop/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "fixshopctl",
	Short: "Administer a fixshop deployment",
	Long: `fixshopctl runs maintenance tasks against the database configured through
the same environment variables (or CONFIG_FILE) as the server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// env bundles what every command needs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	repo   repo.Repository
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	r, err := repo.Open(ctx, repo.Options{
		Driver:      cfg.DatabaseDriver,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return &env{cfg: cfg, logger: logger, repo: r}, nil
}

func (e *env) Close() {
	e.repo.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
