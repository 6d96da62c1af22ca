package repo

import (
	"context"
	"database/sql"

	"welfareflow/internal/domain"
)

func (r Repo) AddToPool(ctx context.Context, tx *sql.Tx, e domain.PoolEntry) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO pools(service_id,access_level,access_code,reference_number,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(service_id,access_level,access_code,reference_number) DO NOTHING`),
		e.ServiceID, e.AccessLevel, e.AccessCode, e.ReferenceNumber, e.CreatedAt)
	return err
}

// RemoveFromPool reports whether a membership row was deleted.
func (r Repo) RemoveFromPool(ctx context.Context, tx *sql.Tx, e domain.PoolEntry) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM pools WHERE service_id=? AND access_level=? AND access_code=? AND reference_number=?`),
		e.ServiceID, e.AccessLevel, e.AccessCode, e.ReferenceNumber)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearPools drops every pool membership of an application.
func (r Repo) ClearPools(ctx context.Context, tx *sql.Tx, ref string) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM pools WHERE reference_number=?`), ref)
	return err
}

// PoolReferences returns the pooled reference numbers of one officer scope.
func (r Repo) PoolReferences(ctx context.Context, serviceID int, level string, code int) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT reference_number FROM pools WHERE service_id=? AND access_level=? AND access_code=?`), serviceID, level, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		res[ref] = true
	}
	return res, rows.Err()
}
