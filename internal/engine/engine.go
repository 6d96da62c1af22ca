package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"welfareflow/internal/area"
	"welfareflow/internal/config"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/history"
	"welfareflow/internal/logger"
	"welfareflow/internal/metrics"
	"welfareflow/internal/officer"
	"welfareflow/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	History   history.Writer
	Areas     *area.Resolver
	Artifacts ArtifactStore
	Logger    *logger.Logger
	Now       func() time.Time
}

func New(conn *sql.DB, dialect string, cfg *config.Config, log *logger.Logger) Engine {
	r := repo.New(conn, dialect)
	root := ""
	if cfg != nil {
		root = cfg.Sanction.ArtifactRoot
	}
	if log == nil {
		log = logger.Nop()
	}
	return Engine{
		DB:        conn,
		Repo:      r,
		History:   history.Writer{Repo: r},
		Areas:     area.NewResolver(r),
		Artifacts: LocalArtifacts{Root: root},
		Logger:    log,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// appendHistory writes an audit row stamped with the engine clock.
func (e Engine) appendHistory(ctx context.Context, tx *sql.Tx, h domain.ActionHistory) (domain.ActionHistory, error) {
	w := e.History
	w.Now = e.now
	return w.Append(ctx, tx, h)
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError is a request that is well-formed but semantically invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AdditionalDetails carries action specific inputs.
type AdditionalDetails struct {
	EditableFields     []string `json:"editableFields,omitempty"`
	SignedDocumentPath string   `json:"signedDocumentPath,omitempty"`
	TargetAccessCode   int      `json:"targetAccessCode,omitempty"`
}

type ActionRequest struct {
	ReferenceNumber string
	Officer         domain.Officer
	Action          string
	Remarks         string
	Details         AdditionalDetails
}

type ActionResult struct {
	Application domain.CitizenApplication
	History     domain.ActionHistory
	Message     string
}

// NormalizeAction maps a case-insensitive action name to its canonical form.
func NormalizeAction(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, a := range domain.Actions {
		if strings.EqualFold(a, name) {
			return a, true
		}
	}
	return "", false
}

// HandleAction authorizes and applies one officer action. The application
// row, its player index, pool membership and the history row change in one
// transaction guarded by the version column.
func (e Engine) HandleAction(ctx context.Context, req ActionRequest) (res ActionResult, err error) {
	started := time.Now()
	action, ok := NormalizeAction(req.Action)
	defer func() {
		metrics.RecordAction(action, outcome(err), time.Since(started))
	}()
	if !ok {
		return ActionResult{}, ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
	if err := officer.RequireOfficer(req.Officer); err != nil {
		return ActionResult{}, auth.ForbiddenActionError{Action: action, Designation: req.Officer.Role, Reason: err.Error()}
	}
	tables, err := e.Areas.Tables(ctx)
	if err != nil {
		return ActionResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ActionResult{}, err
	}
	defer tx.Rollback()

	app, err := e.loadForUpdate(ctx, tx, req.ReferenceNumber)
	if err != nil {
		return ActionResult{}, err
	}
	if domain.IsTerminal(app.Status) {
		return ActionResult{}, auth.TerminalStateError{Status: app.Status}
	}
	svc, err := e.Repo.GetServiceTx(ctx, tx, app.ServiceID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("load service %d: %w", app.ServiceID, err)
	}
	acting, err := actingPlayer(app, req.Officer, action)
	if err != nil {
		return ActionResult{}, err
	}
	if err := auth.CheckAction(svc, req.Officer.Role, action); err != nil {
		return ActionResult{}, err
	}
	if action == domain.ActionSanction {
		if err := e.checkSignedDocument(ctx, req.Details.SignedDocumentPath); err != nil {
			return ActionResult{}, err
		}
	}

	next := app
	next.WorkFlow = app.WorkFlow.Clone()
	next.FormDetails = app.FormDetails.Clone()
	now := e.stamp()
	msg, err := apply(&next, action, acting, req.Details, tables, now)
	if err != nil {
		return ActionResult{}, err
	}
	next.Version = app.Version + 1
	next.UpdatedAt = now
	if err := e.Repo.UpdateApplication(ctx, tx, next, app.Version); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return ActionResult{}, auth.NotCurrentPlayerError{Officer: req.Officer.Username, Stale: true}
		}
		return ActionResult{}, fmt.Errorf("update application: %w", err)
	}
	if err := e.Repo.ClearPools(ctx, tx, app.ReferenceNumber); err != nil {
		return ActionResult{}, fmt.Errorf("clear pool membership: %w", err)
	}
	h, err := e.appendHistory(ctx, tx, domain.ActionHistory{
		ReferenceNumber: app.ReferenceNumber,
		ActionTaker:     req.Officer.Role,
		ActionTaken:     action,
		Remarks:         req.Remarks,
		LocationLevel:   req.Officer.AccessLevel,
		LocationValue:   req.Officer.AccessCode,
	})
	if err != nil {
		return ActionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ActionResult{}, err
	}
	e.Logger.Info("workflow action applied",
		"reference_number", app.ReferenceNumber,
		"action", action,
		"officer", req.Officer.Username,
		"current_player", next.CurrentPlayer,
		"status", next.Status)
	return ActionResult{Application: next, History: h, Message: msg}, nil
}

// loadForUpdate reads the application inside tx; corrupt stored data is logged.
func (e Engine) loadForUpdate(ctx context.Context, tx *sql.Tx, ref string) (domain.CitizenApplication, error) {
	app, err := e.Repo.GetApplicationTx(ctx, tx, ref)
	if err == nil {
		err = app.WorkFlow.CheckCurrent(app.CurrentPlayer)
	}
	if err != nil {
		if errors.Is(err, domain.ErrCorruptWorkflow) || errors.Is(err, domain.ErrCorruptFormDetails) {
			e.Logger.Error("corrupt application data", "reference_number", ref, "error", err)
		}
		return domain.CitizenApplication{}, err
	}
	return app, nil
}

func (e Engine) checkSignedDocument(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return ValidationError{Field: "signedDocumentPath", Message: "a signed sanction document is required"}
	}
	if e.Artifacts == nil {
		return nil
	}
	ok, err := e.Artifacts.Exists(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrArtifactUnavailable) {
			err = fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
		}
		return err
	}
	if !ok {
		return ValidationError{Field: "signedDocumentPath", Message: fmt.Sprintf("signed document %s not found", path)}
	}
	return nil
}

func outcome(err error) string {
	var verr ValidationError
	switch {
	case err == nil:
		return "ok"
	case auth.IsAuthorization(err):
		return "forbidden"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
