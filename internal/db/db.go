package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".moldline"
	fileName = "moldline.db"

	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace string
	// BusyTimeout bounds how long a statement waits on another writer.
	BusyTimeout time.Duration
}

func (c Config) dsn() string {
	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		Path(c.Workspace), timeout.Milliseconds())
}

// EnsureWorkspace creates <workspace>/.moldline and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace state dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database with foreign keys enforced.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; queue transactions on one connection.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the database file of a workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), stateDir, fileName)
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
