package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"welfareflow/internal/domain"
)

const applicationColumns = `a.reference_number,a.service_id,a.applicant_name,COALESCE(a.account_number,''),a.form_details_json,a.workflow_json,a.current_player,a.status,COALESCE(a.editable_fields_json,''),COALESCE(a.sanction_letter_path,''),a.submitted_by,a.version,a.created_at,a.updated_at`

// ApplicationFilters selects applications by the officer's step in their workflow.
type ApplicationFilters struct {
	ServiceID   int
	Designation string
	AccessLevel string
	AccessCode  int
	Status      string
	Limit       int
	Offset      int
}

func scanApplication(row rowScanner) (domain.CitizenApplication, error) {
	var a domain.CitizenApplication
	var formJSON, workflowJSON, editableJSON string
	err := row.Scan(&a.ReferenceNumber, &a.ServiceID, &a.ApplicantName, &a.AccountNumber, &formJSON, &workflowJSON,
		&a.CurrentPlayer, &a.Status, &editableJSON, &a.SanctionLetterPath, &a.SubmittedBy, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if a.FormDetails, err = domain.ParseFormDetails(formJSON); err != nil {
		return a, fmt.Errorf("application %s: %w", a.ReferenceNumber, err)
	}
	if a.WorkFlow, err = domain.ParseWorkflow(workflowJSON); err != nil {
		return a, fmt.Errorf("application %s: %w", a.ReferenceNumber, err)
	}
	if editableJSON != "" {
		if err := json.Unmarshal([]byte(editableJSON), &a.EditableFields); err != nil {
			return a, fmt.Errorf("application %s editable fields: %w", a.ReferenceNumber, domain.ErrCorruptFormDetails)
		}
	}
	return a, nil
}

func encodeApplication(a domain.CitizenApplication) (form, workflow string, editable any, err error) {
	if form, err = a.FormDetails.JSON(); err != nil {
		return "", "", nil, fmt.Errorf("marshal form details: %w", err)
	}
	if workflow, err = a.WorkFlow.JSON(); err != nil {
		return "", "", nil, fmt.Errorf("marshal workflow: %w", err)
	}
	if len(a.EditableFields) > 0 {
		data, err := json.Marshal(a.EditableFields)
		if err != nil {
			return "", "", nil, err
		}
		editable = string(data)
	}
	return form, workflow, editable, nil
}

// InsertApplication stores a new application together with its player index.
func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.CitizenApplication) error {
	form, workflow, editable, err := encodeApplication(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, r.q(`INSERT INTO citizen_applications(reference_number,service_id,applicant_name,account_number,form_details_json,workflow_json,current_player,status,editable_fields_json,sanction_letter_path,submitted_by,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		a.ReferenceNumber, a.ServiceID, a.ApplicantName, nullable(a.AccountNumber), form, workflow, a.CurrentPlayer, a.Status,
		editable, nullable(a.SanctionLetterPath), a.SubmittedBy, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	return r.syncPlayers(ctx, tx, a)
}

// UpdateApplication writes the mutable state when the stored version still
// equals expectedVersion, then rebuilds the player index in the same tx.
func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, a domain.CitizenApplication, expectedVersion int) error {
	form, workflow, editable, err := encodeApplication(a)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.q(`UPDATE citizen_applications SET applicant_name=?, account_number=?, form_details_json=?, workflow_json=?, current_player=?, status=?, editable_fields_json=?, sanction_letter_path=?, version=?, updated_at=?
WHERE reference_number=? AND version=?`),
		a.ApplicantName, nullable(a.AccountNumber), form, workflow, a.CurrentPlayer, a.Status, editable, nullable(a.SanctionLetterPath),
		a.Version, a.UpdatedAt, a.ReferenceNumber, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return r.syncPlayers(ctx, tx, a)
}

func (r Repo) syncPlayers(ctx context.Context, tx *sql.Tx, a domain.CitizenApplication) error {
	if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM application_players WHERE reference_number=?`), a.ReferenceNumber); err != nil {
		return fmt.Errorf("clear player index: %w", err)
	}
	for i, p := range a.WorkFlow {
		current := 0
		if i == a.CurrentPlayer {
			current = 1
		}
		_, err := tx.ExecContext(ctx, r.q(`INSERT INTO application_players(reference_number,player_id,designation,access_level,access_code,status,is_current) VALUES (?,?,?,?,?,?,?)`),
			a.ReferenceNumber, p.PlayerID, p.Designation, p.AccessLevel, p.AccessCode, p.Status, current)
		if err != nil {
			return fmt.Errorf("index player %d: %w", p.PlayerID, err)
		}
	}
	return nil
}

func (r Repo) GetApplication(ctx context.Context, ref string) (domain.CitizenApplication, error) {
	return r.getApplication(ctx, nil, ref)
}

func (r Repo) GetApplicationTx(ctx context.Context, tx *sql.Tx, ref string) (domain.CitizenApplication, error) {
	return r.getApplication(ctx, tx, ref)
}

func (r Repo) getApplication(ctx context.Context, tx *sql.Tx, ref string) (domain.CitizenApplication, error) {
	row := r.conn(tx).QueryRowContext(ctx, r.q(`SELECT `+applicationColumns+` FROM citizen_applications a WHERE a.reference_number=?`), ref)
	return scanApplication(row)
}

func officerPredicate(f ApplicationFilters) (string, []any) {
	clauses := []string{"a.service_id=?", "p.designation=?", "p.access_level=?", "p.access_code=?"}
	args := []any{f.ServiceID, f.Designation, f.AccessLevel, f.AccessCode}
	switch f.Status {
	case "":
		clauses = append(clauses, "p.status<>''", "(p.status<>'pending' OR p.is_current=1)")
	case domain.StatusPending:
		clauses = append(clauses, "p.status=?", "p.is_current=1")
		args = append(args, f.Status)
	default:
		clauses = append(clauses, "p.status=?")
		args = append(args, f.Status)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListApplicationsForOfficer returns applications where the officer's step
// carries the requested status, oldest submission first.
func (r Repo) ListApplicationsForOfficer(ctx context.Context, f ApplicationFilters) ([]domain.CitizenApplication, error) {
	where, args := officerPredicate(f)
	query := `SELECT DISTINCT ` + applicationColumns + ` FROM citizen_applications a
JOIN application_players p ON p.reference_number=a.reference_number` + where + ` ORDER BY a.created_at ASC, a.reference_number ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CitizenApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountApplicationsForOfficer(ctx context.Context, f ApplicationFilters) (int, error) {
	where, args := officerPredicate(f)
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(DISTINCT a.reference_number) FROM citizen_applications a
JOIN application_players p ON p.reference_number=a.reference_number`+where), args...).Scan(&n)
	return n, err
}

// CountByStatusForOfficer groups the officer's applications by the status of their step.
func (r Repo) CountByStatusForOfficer(ctx context.Context, f ApplicationFilters) (map[string]int, error) {
	f.Status = ""
	where, args := officerPredicate(f)
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT p.status, COUNT(DISTINCT a.reference_number) FROM citizen_applications a
JOIN application_players p ON p.reference_number=a.reference_number`+where+` GROUP BY p.status`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

// CountAccountNumber counts live applications other than excludeRef using the account.
func (r Repo) CountAccountNumber(ctx context.Context, account, excludeRef string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM citizen_applications WHERE account_number=? AND reference_number<>? AND status<>?`),
		account, excludeRef, domain.StatusRejected).Scan(&n)
	return n, err
}
