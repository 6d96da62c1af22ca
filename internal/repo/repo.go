package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"welfareflow/internal/db"
)

// Repo is the SQL workflow store. Queries are written with `?` placeholders
// and rebound for the configured dialect.
type Repo struct {
	DB      *sql.DB
	Dialect string
}

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

func New(conn *sql.DB, dialect string) Repo {
	return Repo{DB: conn, Dialect: dialect}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r Repo) q(query string) string {
	return sqlx.Rebind(sqlx.BindType(db.DriverName(r.Dialect)), query)
}

// conn returns tx when set so reads inside a transaction see its writes.
func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
