package repo

import (
	"context"
	"database/sql"

	"welfareflow/internal/domain"
)

func (r Repo) UpsertDistrict(ctx context.Context, tx *sql.Tx, d domain.District) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO districts(district_id,name,division) VALUES (?,?,?)
ON CONFLICT(district_id) DO UPDATE SET name=excluded.name, division=excluded.division`), d.ID, d.Name, d.Division)
	return err
}

func (r Repo) UpsertTehsil(ctx context.Context, tx *sql.Tx, t domain.Tehsil) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO tehsils(tehsil_id,name,district_id) VALUES (?,?,?)
ON CONFLICT(tehsil_id) DO UPDATE SET name=excluded.name, district_id=excluded.district_id`), t.ID, t.Name, t.DistrictID)
	return err
}

func (r Repo) ListDistricts(ctx context.Context) ([]domain.District, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT district_id,name,division FROM districts ORDER BY district_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.District
	for rows.Next() {
		var d domain.District
		if err := rows.Scan(&d.ID, &d.Name, &d.Division); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListTehsils(ctx context.Context) ([]domain.Tehsil, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tehsil_id,name,district_id FROM tehsils ORDER BY tehsil_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tehsil
	for rows.Next() {
		var t domain.Tehsil
		if err := rows.Scan(&t.ID, &t.Name, &t.DistrictID); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
