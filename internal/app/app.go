// Package app assembles a workspace: config, logger, database and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"moldline/internal/config"
	"moldline/internal/db"
	"moldline/internal/engine"
	"moldline/internal/logging"
	"moldline/internal/metrics"
	"moldline/internal/migrate"
)

type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/moldline.yml.
	ConfigPath string
	// LogLevel overrides log.level from the config file.
	LogLevel string
}

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
}

// Open loads config, migrates the workspace database and builds the engine.
// A missing config file falls back to defaults.
func Open(ctx context.Context, opts Options) (*App, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	cfg, err := loadConfig(workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rec := metrics.New()
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	eng.Metrics = rec
	logger.Debug("workspace opened", zap.String("workspace", workspace), zap.String("db", db.Path(workspace)), zap.String("site", cfg.Site.ID))
	return &App{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    eng,
		Logger:    logger,
		Metrics:   rec,
	}, nil
}

func loadConfig(workspace, override string) (*config.Config, error) {
	if override != "" {
		cfg, err := config.FromFile(override)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", override, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(workspace, "default")
}

// Close flushes the logger and closes the database.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	_ = a.Logger.Sync()
	return a.DB.Close()
}
