package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"welfareflow/internal/domain"
)

func scanService(row rowScanner) (domain.Service, error) {
	var s domain.Service
	var workflowJSON string
	err := row.Scan(&s.ServiceID, &s.Name, &workflowJSON, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.Steps, err = domain.ParseWorkflow(workflowJSON); err != nil {
		return s, fmt.Errorf("service %d: %w", s.ServiceID, err)
	}
	return s, nil
}

// UpsertService stores a service and its workflow template.
func (r Repo) UpsertService(ctx context.Context, tx *sql.Tx, s domain.Service) error {
	workflow, err := s.Steps.JSON()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO services(service_id,name,workflow_json,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(service_id) DO UPDATE SET name=excluded.name, workflow_json=excluded.workflow_json, updated_at=excluded.updated_at`),
		s.ServiceID, s.Name, workflow, now, now)
	return err
}

func (r Repo) GetService(ctx context.Context, id int) (domain.Service, error) {
	return r.getService(ctx, nil, id)
}

func (r Repo) GetServiceTx(ctx context.Context, tx *sql.Tx, id int) (domain.Service, error) {
	return r.getService(ctx, tx, id)
}

func (r Repo) getService(ctx context.Context, tx *sql.Tx, id int) (domain.Service, error) {
	return scanService(r.conn(tx).QueryRowContext(ctx, r.q(`SELECT service_id,name,workflow_json,created_at,updated_at FROM services WHERE service_id=?`), id))
}

func (r Repo) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT service_id,name,workflow_json,created_at,updated_at FROM services ORDER BY service_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
