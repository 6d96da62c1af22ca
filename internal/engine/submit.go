package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"welfareflow/internal/domain"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/repo"
)

type SubmitRequest struct {
	ServiceID       int
	ReferenceNumber string
	FormDetails     domain.FormDetails
	Remarks         string
	// SubmittedBy is the username that owns the application and may later
	// correct it.
	SubmittedBy string
}

// Submit creates an application at the first player of the service workflow.
func (e Engine) Submit(ctx context.Context, req SubmitRequest) (domain.CitizenApplication, error) {
	if req.FormDetails == nil {
		return domain.CitizenApplication{}, ValidationError{Field: "formDetails", Message: "form details are required"}
	}
	if err := req.FormDetails.Validate(); err != nil {
		return domain.CitizenApplication{}, ValidationError{Field: "formDetails", Message: err.Error()}
	}
	name := req.FormDetails.Value(domain.FieldApplicantName)
	if name == "" {
		return domain.CitizenApplication{}, ValidationError{Field: domain.FieldApplicantName, Message: "applicant name is required"}
	}
	svc, err := e.Repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return domain.CitizenApplication{}, fmt.Errorf("service %d: %w", req.ServiceID, err)
	}
	tables, err := e.Areas.Tables(ctx)
	if err != nil {
		return domain.CitizenApplication{}, err
	}
	workflow, err := svc.Steps.Instantiate(func(level string) (int, error) {
		var district, tehsil int
		var err error
		if level != domain.LevelState {
			if district, err = req.FormDetails.IntValue(domain.FieldDistrict); err != nil {
				return 0, ValidationError{Field: domain.FieldDistrict, Message: err.Error()}
			}
		}
		if level == domain.LevelTehsil {
			if tehsil, err = req.FormDetails.IntValue(domain.FieldTehsil); err != nil {
				return 0, ValidationError{Field: domain.FieldTehsil, Message: err.Error()}
			}
		}
		if level == domain.LevelState {
			return 0, nil
		}
		code, err := tables.CodeFor(level, district, tehsil)
		if err != nil {
			return 0, ValidationError{Field: "formDetails", Message: err.Error()}
		}
		return code, nil
	})
	if err != nil {
		return domain.CitizenApplication{}, err
	}

	now := e.now()
	ref := strings.TrimSpace(req.ReferenceNumber)
	if ref == "" {
		ref = fmt.Sprintf("WF/%d/%d/%s", svc.ServiceID, now.Year(), strings.ToUpper(uuid.NewString()[:8]))
	}
	stamp := now.UTC().Format(time.RFC3339)
	app := domain.CitizenApplication{
		ReferenceNumber: ref,
		ServiceID:       svc.ServiceID,
		ApplicantName:   name,
		AccountNumber:   req.FormDetails.Value(domain.FieldAccountNumber),
		FormDetails:     req.FormDetails.Clone(),
		WorkFlow:        workflow,
		CurrentPlayer:   0,
		Status:          domain.StatusPending,
		SubmittedBy:     strings.TrimSpace(req.SubmittedBy),
		CreatedAt:       stamp,
		UpdatedAt:       stamp,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CitizenApplication{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetApplicationTx(ctx, tx, ref); err == nil {
		return domain.CitizenApplication{}, ValidationError{Field: "referenceNumber", Message: fmt.Sprintf("application %s already exists", ref)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.CitizenApplication{}, err
	}
	if err := e.Repo.InsertApplication(ctx, tx, app); err != nil {
		return domain.CitizenApplication{}, fmt.Errorf("insert application: %w", err)
	}
	if _, err := e.appendHistory(ctx, tx, domain.ActionHistory{
		ReferenceNumber: ref,
		ActionTaker:     domain.CitizenActor,
		ActionTaken:     domain.ActionSubmitted,
		Remarks:         req.Remarks,
	}); err != nil {
		return domain.CitizenApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CitizenApplication{}, err
	}
	e.Logger.Info("application submitted", "reference_number", ref, "service_id", svc.ServiceID)
	return app, nil
}

type ResubmitRequest struct {
	ReferenceNumber string
	Fields          map[string]any
	Remarks         string
	Citizen         string
}

// Resubmit applies a citizen's corrections after ReturnToCitizen. Only the
// applicant who submitted the application may call it, and only the fields
// the officer marked editable may change.
func (e Engine) Resubmit(ctx context.Context, req ResubmitRequest) (domain.CitizenApplication, error) {
	if len(req.Fields) == 0 {
		return domain.CitizenApplication{}, ValidationError{Field: "fields", Message: "no corrections supplied"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CitizenApplication{}, err
	}
	defer tx.Rollback()

	app, err := e.loadForUpdate(ctx, tx, req.ReferenceNumber)
	if err != nil {
		return domain.CitizenApplication{}, err
	}
	if strings.TrimSpace(req.Citizen) != app.SubmittedBy {
		return domain.CitizenApplication{}, auth.ForbiddenActionError{Action: domain.ActionResubmitted, Designation: domain.CitizenActor, Reason: "only the applicant may correct the application"}
	}
	if domain.IsTerminal(app.Status) {
		return domain.CitizenApplication{}, auth.TerminalStateError{Status: app.Status}
	}
	if app.Status != domain.StatusReturnToEdit {
		return domain.CitizenApplication{}, auth.ForbiddenActionError{Action: domain.ActionResubmitted, Designation: domain.CitizenActor, Reason: "application is not awaiting correction"}
	}
	editable := map[string]bool{}
	for _, f := range app.EditableFields {
		editable[f] = true
	}
	next := app
	next.WorkFlow = app.WorkFlow.Clone()
	next.FormDetails = app.FormDetails.Clone()
	for name, value := range req.Fields {
		if !editable[name] || domain.IsAreaField(name) {
			return domain.CitizenApplication{}, ValidationError{Field: name, Message: "field is not open for correction"}
		}
		if !next.FormDetails.Set(name, value) {
			return domain.CitizenApplication{}, ValidationError{Field: name, Message: "unknown form field"}
		}
	}
	if name := next.FormDetails.Value(domain.FieldApplicantName); name != "" {
		next.ApplicantName = name
	}
	next.AccountNumber = next.FormDetails.Value(domain.FieldAccountNumber)
	next.WorkFlow[next.CurrentPlayer].Status = domain.StatusPending
	next.Status = domain.StatusPending
	next.EditableFields = nil
	next.Version = app.Version + 1
	next.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateApplication(ctx, tx, next, app.Version); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return domain.CitizenApplication{}, auth.NotCurrentPlayerError{Officer: domain.CitizenActor, Stale: true}
		}
		return domain.CitizenApplication{}, fmt.Errorf("update application: %w", err)
	}
	if _, err := e.appendHistory(ctx, tx, domain.ActionHistory{
		ReferenceNumber: app.ReferenceNumber,
		ActionTaker:     domain.CitizenActor,
		ActionTaken:     domain.ActionResubmitted,
		Remarks:         req.Remarks,
	}); err != nil {
		return domain.CitizenApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CitizenApplication{}, err
	}
	return next, nil
}
