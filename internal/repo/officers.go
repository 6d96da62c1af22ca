package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"welfareflow/internal/domain"
)

const officerColumns = `username,COALESCE(name,''),designation,access_level,access_code,user_type,created_at`

func scanOfficer(row rowScanner) (domain.Officer, error) {
	var o domain.Officer
	err := row.Scan(&o.Username, &o.Name, &o.Role, &o.AccessLevel, &o.AccessCode, &o.UserType, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

// UpsertOfficer inserts or refreshes an officer record.
func (r Repo) UpsertOfficer(ctx context.Context, tx *sql.Tx, o domain.Officer) error {
	if o.Username == "" {
		return errors.New("username required")
	}
	if o.CreatedAt == "" {
		o.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO officers(username,name,designation,access_level,access_code,user_type,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(username) DO UPDATE SET name=excluded.name, designation=excluded.designation, access_level=excluded.access_level, access_code=excluded.access_code, user_type=excluded.user_type`),
		o.Username, nullable(o.Name), o.Role, o.AccessLevel, o.AccessCode, o.UserType, o.CreatedAt)
	return err
}

func (r Repo) GetOfficer(ctx context.Context, username string) (domain.Officer, error) {
	return scanOfficer(r.DB.QueryRowContext(ctx, r.q(`SELECT `+officerColumns+` FROM officers WHERE username=?`), username))
}

func (r Repo) ListOfficers(ctx context.Context) ([]domain.Officer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+officerColumns+` FROM officers ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
