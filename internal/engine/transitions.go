package engine

import (
	"fmt"

	"welfareflow/internal/area"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine/auth"
)

// actingPlayer returns the index of the step the officer acts from. Pull is
// taken by the step preceding the current one, every other action by the
// current player.
func actingPlayer(app domain.CitizenApplication, officer domain.Officer, action string) (int, error) {
	cur := app.CurrentPlayer
	if action == domain.ActionPull {
		prev, ok := app.WorkFlow.Predecessor(cur)
		if !ok || !app.WorkFlow[prev].Holds(officer) {
			return 0, auth.NotCurrentPlayerError{Officer: officer.Username}
		}
		if app.WorkFlow[prev].Status != domain.StatusForwarded {
			return 0, auth.ForbiddenActionError{Action: action, Designation: officer.Role, Reason: "application was not forwarded by this officer"}
		}
		if app.WorkFlow[cur].Status != domain.StatusPending || app.Status != domain.StatusPending {
			return 0, auth.ForbiddenActionError{Action: action, Designation: officer.Role, Reason: "next officer has already acted"}
		}
		return prev, nil
	}
	if !app.WorkFlow[cur].Holds(officer) {
		return 0, auth.NotCurrentPlayerError{Officer: officer.Username}
	}
	if app.Status == domain.StatusReturnToEdit {
		return 0, auth.ForbiddenActionError{Action: action, Designation: officer.Role, Reason: "application is with the citizen for correction"}
	}
	if app.WorkFlow[cur].Status != domain.StatusPending {
		return 0, auth.ForbiddenActionError{Action: action, Designation: officer.Role, Reason: "step is not pending"}
	}
	return cur, nil
}

// apply mutates app for one authorized action and returns a short outcome message.
func apply(app *domain.CitizenApplication, action string, acting int, details AdditionalDetails, tables area.Tables, now string) (string, error) {
	wf := app.WorkFlow
	cur := app.CurrentPlayer
	switch action {
	case domain.ActionForward:
		next, ok := wf.Next(cur)
		if !ok {
			return "", ValidationError{Field: "action", Message: "the last officer cannot forward; sanction or reject instead"}
		}
		wf[cur].Status = domain.StatusForwarded
		wf[cur].CompletedAt = now
		wf[next].Status = domain.StatusPending
		wf[next].CompletedAt = ""
		app.CurrentPlayer = next
		app.Status = domain.StatusPending
		return fmt.Sprintf("Application forwarded to %s", wf[next].Designation), nil

	case domain.ActionReturn:
		prev, ok := wf.Predecessor(cur)
		if !ok {
			return "", ValidationError{Field: "action", Message: "the first officer cannot return to a previous officer"}
		}
		wf[cur].Status = domain.StatusReturned
		wf[cur].CompletedAt = now
		wf[prev].Status = domain.StatusPending
		wf[prev].CompletedAt = ""
		app.CurrentPlayer = prev
		app.Status = domain.StatusPending
		return fmt.Sprintf("Application returned to %s", wf[prev].Designation), nil

	case domain.ActionReturnToCitizen:
		if len(details.EditableFields) == 0 {
			return "", ValidationError{Field: "editableFields", Message: "at least one editable field is required"}
		}
		for _, name := range details.EditableFields {
			if _, ok := app.FormDetails.Field(name); !ok {
				return "", ValidationError{Field: "editableFields", Message: fmt.Sprintf("unknown form field %s", name)}
			}
			if domain.IsAreaField(name) {
				return "", ValidationError{Field: "editableFields", Message: fmt.Sprintf("%s decides the routing and cannot be reopened; use Shift to move the application", name)}
			}
		}
		wf[cur].Status = domain.StatusReturnToEdit
		app.Status = domain.StatusReturnToEdit
		app.EditableFields = append([]string(nil), details.EditableFields...)
		return "Application returned to citizen for correction", nil

	case domain.ActionReject:
		wf[cur].Status = domain.StatusRejected
		wf[cur].CompletedAt = now
		app.Status = domain.StatusRejected
		return "Application rejected", nil

	case domain.ActionSanction:
		wf[cur].Status = domain.StatusSanctioned
		wf[cur].CompletedAt = now
		app.Status = domain.StatusSanctioned
		app.SanctionLetterPath = details.SignedDocumentPath
		return "Application sanctioned", nil

	case domain.ActionPull:
		wf[cur].Status = domain.StatusNotReached
		wf[cur].CompletedAt = ""
		wf[acting].Status = domain.StatusPending
		wf[acting].CompletedAt = ""
		app.CurrentPlayer = acting
		app.Status = domain.StatusPending
		return "Application pulled back", nil

	case domain.ActionShift:
		holder := wf[cur]
		target := details.TargetAccessCode
		if holder.AccessLevel == domain.LevelState {
			return "", ValidationError{Field: "targetAccessCode", Message: "state level applications cannot be shifted"}
		}
		if target == holder.AccessCode {
			return "", ValidationError{Field: "targetAccessCode", Message: "target is the current office"}
		}
		if !tables.Exists(holder.AccessLevel, target) {
			return "", ValidationError{Field: "targetAccessCode", Message: fmt.Sprintf("unknown %s code %d", holder.AccessLevel, target)}
		}
		moved := holder
		moved.AccessCode = target
		moved.Status = domain.StatusPending
		moved.CompletedAt = ""
		app.WorkFlow = wf.InsertAfter(cur, moved)
		app.WorkFlow[cur].Status = domain.StatusShifted
		app.WorkFlow[cur].CompletedAt = now
		app.CurrentPlayer = cur + 1
		app.Status = domain.StatusPending
		return fmt.Sprintf("Application shifted to %s %s", holder.Designation, tables.Name(holder.AccessLevel, target)), nil
	}
	return "", ValidationError{Field: "action", Message: fmt.Sprintf("unsupported action %s", action)}
}
