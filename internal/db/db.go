package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "welfareflow.db"

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Config struct {
	Workspace string
	Driver    string
	DSN       string
}

func (c Config) Dialect() string {
	if c.Driver == DialectPostgres {
		return DialectPostgres
	}
	return DialectSQLite
}

// DriverName maps a dialect to its registered database/sql driver.
func DriverName(dialect string) string {
	if dialect == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".welfareflow", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".welfareflow")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the configured database. SQLite runs with foreign keys on and a
// single connection so write transactions serialize.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.Dialect() == DialectPostgres {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres requires a dsn")
		}
		return sql.Open(DriverName(DialectPostgres), cfg.DSN)
	}
	dsn := cfg.DSN
	if dsn == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
	}
	conn, err := sql.Open(DriverName(DialectSQLite), dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
