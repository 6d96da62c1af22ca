// Package listing builds the officer dashboards: filtered application tables
// with pool partitioning, per-row actions and status counts.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"welfareflow/internal/columns"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/history"
	"welfareflow/internal/repo"
)

const (
	DataTypeAll  = "all"
	DataTypeData = "data"
	DataTypePool = "pool"
)

const (
	ActionView = "View"
	ActionPull = "Pull"
)

// ErrInvalidRequest marks unknown filters or data types.
var ErrInvalidRequest = errors.New("invalid listing request")

var Catalog = []columns.Column{
	{Key: "sno", Header: "S.No"},
	{Key: "referenceNumber", Header: "Reference Number"},
	{Key: "applicantName", Header: "Applicant Name"},
	{Key: "serviceName", Header: "Service"},
	{Key: "status", Header: "Status"},
	{Key: "submissionDate", Header: "Submission Date"},
	{Key: "actionTakenOn", Header: "Last Action On"},
	{Key: "customActions", Header: "Actions"},
}

type Request struct {
	ServiceID        int
	StatusFilter     string
	ColumnOrder      []string
	ColumnVisibility map[string]bool
	Scope            string
	PageIndex        int
	PageSize         int
	DataType         string
}

type Result struct {
	Data         []columns.Row    `json:"data"`
	PoolData     []columns.Row    `json:"poolData"`
	Columns      []columns.Column `json:"columns"`
	TotalRecords int              `json:"totalRecords"`
	CanSanction  bool             `json:"canSanction"`
}

// CustomAction is one per-row button.
type CustomAction struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type Service struct {
	Repo repo.Repo
}

// ListApplications returns the officer's applications for one service. Scope
// InView pages the result and reports totalRecords; any other scope returns
// every row with totalRecords 0.
func (s Service) ListApplications(ctx context.Context, officer domain.Officer, req Request) (Result, error) {
	dataType, err := normalizeDataType(req.DataType)
	if err != nil {
		return Result{}, err
	}
	if req.StatusFilter != "" && !isStatus(req.StatusFilter) {
		return Result{}, fmt.Errorf("%w: unknown status filter %q", ErrInvalidRequest, req.StatusFilter)
	}
	svc, err := s.Repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return Result{}, fmt.Errorf("service %d: %w", req.ServiceID, err)
	}
	filters := repo.ApplicationFilters{
		ServiceID:   req.ServiceID,
		Designation: officer.Role,
		AccessLevel: officer.AccessLevel,
		AccessCode:  officer.AccessCode,
		Status:      req.StatusFilter,
	}
	inView := req.Scope == columns.ScopeInView
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = columns.DefaultPageSize
	}
	if inView {
		filters.Limit = pageSize
		filters.Offset = max(req.PageIndex, 0) * pageSize
	}

	var apps []domain.CitizenApplication
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		apps, err = s.Repo.ListApplicationsForOfficer(gctx, filters)
		return err
	})
	if inView {
		g.Go(func() error {
			var err error
			total, err = s.Repo.CountApplicationsForOfficer(gctx, filters)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var pooled map[string]bool
	if req.StatusFilter == domain.StatusPending {
		if pooled, err = s.Repo.PoolReferences(ctx, req.ServiceID, officer.AccessLevel, officer.AccessCode); err != nil {
			return Result{}, err
		}
	}
	refs := make([]string, 0, len(apps))
	for _, a := range apps {
		refs = append(refs, a.ReferenceNumber)
	}
	histories, err := s.Repo.ListHistoryForReferences(ctx, refs)
	if err != nil {
		return Result{}, err
	}

	pullAllowed := auth.CheckAction(svc, officer.Role, domain.ActionPull) == nil
	var main, pool []columns.Row
	for _, a := range apps {
		row := columns.Row{
			"referenceNumber": a.ReferenceNumber,
			"applicantName":   a.ApplicantName,
			"serviceName":     svc.Name,
			"status":          a.Status,
			"submissionDate":  formatSubmission(a.CreatedAt),
			"actionTakenOn":   latestAction(histories[a.ReferenceNumber]),
			"customActions":   customActions(a, officer, pullAllowed),
		}
		if pooled[a.ReferenceNumber] {
			row["sno"] = len(pool) + 1
			pool = append(pool, row)
			continue
		}
		row["sno"] = filters.Offset + len(main) + 1
		main = append(main, row)
	}

	cols := columns.Project(Catalog, req.ColumnOrder, req.ColumnVisibility)
	res := Result{
		Data:        []columns.Row{},
		PoolData:    []columns.Row{},
		Columns:     cols,
		CanSanction: auth.CheckAction(svc, officer.Role, domain.ActionSanction) == nil,
	}
	if inView {
		res.TotalRecords = total
	}
	if dataType != DataTypePool {
		res.Data = columns.Select(main, cols)
	}
	if dataType != DataTypeData {
		res.PoolData = columns.Select(pool, cols)
	}
	return res, nil
}

// Counts returns per-status totals for the officer's dashboard tiles.
func (s Service) Counts(ctx context.Context, officer domain.Officer, serviceID int) (map[string]int, error) {
	if _, err := s.Repo.GetService(ctx, serviceID); err != nil {
		return nil, fmt.Errorf("service %d: %w", serviceID, err)
	}
	raw, err := s.Repo.CountByStatusForOfficer(ctx, repo.ApplicationFilters{
		ServiceID:   serviceID,
		Designation: officer.Role,
		AccessLevel: officer.AccessLevel,
		AccessCode:  officer.AccessCode,
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(domain.Statuses)+1)
	total := 0
	for _, st := range domain.Statuses {
		counts[st] = raw[st]
		total += raw[st]
	}
	counts["total"] = total
	return counts, nil
}

// customActions lists View always and Pull when the officer forwarded the
// application and the next officer has not acted yet.
func customActions(a domain.CitizenApplication, officer domain.Officer, pullAllowed bool) []CustomAction {
	actions := []CustomAction{{Name: ActionView, Label: "View"}}
	if !pullAllowed || a.Status != domain.StatusPending {
		return actions
	}
	cur, ok := a.Current()
	if !ok || cur.Status != domain.StatusPending {
		return actions
	}
	prev, ok := a.WorkFlow.Predecessor(a.CurrentPlayer)
	if !ok {
		return actions
	}
	if p := a.WorkFlow[prev]; p.Holds(officer) && p.Status == domain.StatusForwarded {
		actions = append(actions, CustomAction{Name: ActionPull, Label: "Pull"})
	}
	return actions
}

func latestAction(rows []domain.ActionHistory) string {
	ts, ok := history.Latest(rows)
	if !ok {
		return ""
	}
	return ts.Format(domain.HistoryDateLayout)
}

func formatSubmission(createdAt string) string {
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return createdAt
	}
	return ts.Format(domain.SubmissionDateLayout)
}

func normalizeDataType(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", DataTypeAll:
		return DataTypeAll, nil
	case DataTypeData:
		return DataTypeData, nil
	case DataTypePool:
		return DataTypePool, nil
	default:
		return "", fmt.Errorf("%w: unknown data type %q", ErrInvalidRequest, v)
	}
}

func isStatus(v string) bool {
	for _, st := range domain.Statuses {
		if st == v {
			return true
		}
	}
	return false
}
