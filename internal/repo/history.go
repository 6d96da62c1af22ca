package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"welfareflow/internal/domain"
)

// InsertHistory appends one audit row and returns its id.
func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.ActionHistory) (int64, error) {
	var id int64
	err := r.conn(tx).QueryRowContext(ctx, r.q(`INSERT INTO action_history(reference_number,action_taker,action_taken,remarks,location_level,location_value,action_taken_date)
VALUES (?,?,?,?,?,?,?) RETURNING id`),
		h.ReferenceNumber, h.ActionTaker, h.ActionTaken, h.Remarks, h.LocationLevel, h.LocationValue, h.ActionTakenDate).Scan(&id)
	return id, err
}

func scanHistory(rows *sql.Rows) (domain.ActionHistory, error) {
	var h domain.ActionHistory
	err := rows.Scan(&h.ID, &h.ReferenceNumber, &h.ActionTaker, &h.ActionTaken, &h.Remarks, &h.LocationLevel, &h.LocationValue, &h.ActionTakenDate)
	return h, err
}

const historyColumns = `id,reference_number,action_taker,action_taken,remarks,location_level,location_value,action_taken_date`

// ListHistory returns the rows of one application in insertion order.
func (r Repo) ListHistory(ctx context.Context, ref string) ([]domain.ActionHistory, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+historyColumns+` FROM action_history WHERE reference_number=? ORDER BY id ASC`), ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActionHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ListHistoryForReferences loads the history of many applications at once.
func (r Repo) ListHistoryForReferences(ctx context.Context, refs []string) (map[string][]domain.ActionHistory, error) {
	res := make(map[string][]domain.ActionHistory, len(refs))
	if len(refs) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In(`SELECT `+historyColumns+` FROM action_history WHERE reference_number IN (?) ORDER BY id ASC`, refs)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res[h.ReferenceNumber] = append(res[h.ReferenceNumber], h)
	}
	return res, rows.Err()
}
