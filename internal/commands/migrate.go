package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"saldo/internal/config"
	"saldo/internal/storage"
)

func newMigrateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sqlitePath(app.Config())
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			return printVersion(app, path)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			path, err := sqlitePath(app.Config())
			if err != nil {
				return err
			}
			if err := storage.RollbackMigrations(path, steps); err != nil {
				return err
			}
			return printVersion(app, path)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sqlitePath(app.Config())
			if err != nil {
				return err
			}
			return printVersion(app, path)
		},
	})
	return cmd
}

func sqlitePath(cfg *config.Config) (string, error) {
	if cfg.SQLiteDBPath == "" {
		return "", errors.New("SQLITE_DB_PATH is not set")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0o755); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return cfg.SQLiteDBPath, nil
}

func printVersion(app *App, path string) error {
	v, dirty, err := storage.MigrationVersion(path)
	if err != nil {
		return err
	}
	return app.printJSON(map[string]any{"path": path, "version": v, "dirty": dirty})
}
