package history

import (
	"context"
	"sort"
	"strings"

	"welfareflow/internal/area"
	"welfareflow/internal/columns"
	"welfareflow/internal/domain"
	"welfareflow/internal/repo"
)

// ReturnedToCitizenLabel is how ReturnToCitizen rows are rendered.
const ReturnedToCitizenLabel = "Returned to citizen for correction"

var Catalog = []columns.Column{
	{Key: "sno", Header: "S.No"},
	{Key: "actionTaker", Header: "Action Taker"},
	{Key: "actionTaken", Header: "Action Taken"},
	{Key: "remarks", Header: "Remarks"},
	{Key: "actionTakenOn", Header: "Action Taken On"},
}

type Request struct {
	ReferenceNumber  string
	ColumnOrder      []string
	ColumnVisibility map[string]bool
	Page             int
	Size             int
	Scope            string
}

type Result struct {
	Data         []columns.Row    `json:"data"`
	Columns      []columns.Column `json:"columns"`
	TotalRecords int              `json:"totalRecords"`
}

type Service struct {
	Repo  repo.Repo
	Areas *area.Resolver
}

// GetHistory renders the audit trail of an application, oldest first, with a
// trailing pending row when the application waits at an officer.
func (s Service) GetHistory(ctx context.Context, req Request) (Result, error) {
	app, err := s.Repo.GetApplication(ctx, req.ReferenceNumber)
	if err != nil {
		return Result{}, err
	}
	entries, err := s.Repo.ListHistory(ctx, req.ReferenceNumber)
	if err != nil {
		return Result{}, err
	}
	tables, err := s.Areas.Tables(ctx)
	if err != nil {
		return Result{}, err
	}
	sortEntries(entries)

	rows := make([]columns.Row, 0, len(entries)+1)
	for _, h := range entries {
		rows = append(rows, columns.Row{
			"actionTaker":   actionTaker(tables, h.ActionTaker, h.LocationLevel, h.LocationValue),
			"actionTaken":   actionLabel(h.ActionTaken),
			"remarks":       h.Remarks,
			"actionTakenOn": h.ActionTakenDate,
		})
	}
	if cur, ok := app.Current(); ok && !domain.IsTerminal(app.Status) && cur.Status == domain.StatusPending {
		rows = append(rows, columns.Row{
			"actionTaker":   actionTaker(tables, cur.Designation, cur.AccessLevel, cur.AccessCode),
			"actionTaken":   domain.StatusPending,
			"remarks":       "",
			"actionTakenOn": "",
		})
	}
	for i := range rows {
		rows[i]["sno"] = i + 1
	}

	total := len(rows)
	if req.Scope == columns.ScopeInView {
		start, end := columns.Window(total, req.Page, req.Size)
		rows = rows[start:end]
	}
	cols := columns.Project(Catalog, req.ColumnOrder, req.ColumnVisibility)
	return Result{
		Data:         columns.Select(rows, cols),
		Columns:      cols,
		TotalRecords: total,
	}, nil
}

// sortEntries orders by parsed date with insertion id as tiebreak.
func sortEntries(entries []domain.ActionHistory) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, erri := ParseDate(entries[i].ActionTakenDate)
		tj, errj := ParseDate(entries[j].ActionTakenDate)
		if erri == nil && errj == nil && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].ID < entries[j].ID
	})
}

func actionTaker(tables area.Tables, designation, level string, code int) string {
	if designation == domain.CitizenActor {
		return designation
	}
	return strings.TrimSpace(designation + " " + tables.Name(level, code))
}

func actionLabel(action string) string {
	if action == domain.ActionReturnToCitizen {
		return ReturnedToCitizenLabel
	}
	return action
}
