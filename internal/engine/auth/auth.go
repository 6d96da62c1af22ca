package auth

import (
	"errors"
	"fmt"

	"welfareflow/internal/domain"
)

// NotCurrentPlayerError indicates the officer does not hold the application.
// Stale is set when a concurrent action moved it first.
type NotCurrentPlayerError struct {
	Officer string
	Stale   bool
}

func (e NotCurrentPlayerError) Error() string {
	if e.Stale {
		return fmt.Sprintf("application was updated concurrently; %s no longer holds it", e.Officer)
	}
	return fmt.Sprintf("%s is not the current player for this application", e.Officer)
}

// ForbiddenActionError indicates the workflow definition does not grant the action.
type ForbiddenActionError struct {
	Action      string
	Designation string
	Reason      string
}

func (e ForbiddenActionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("action %s not allowed for %s: %s", e.Action, e.Designation, e.Reason)
	}
	return fmt.Sprintf("action %s not allowed for %s", e.Action, e.Designation)
}

// TerminalStateError indicates the application is already sanctioned or rejected.
type TerminalStateError struct {
	Status string
}

func (e TerminalStateError) Error() string {
	return fmt.Sprintf("application is %s; no further action possible", e.Status)
}

// IsAuthorization reports whether err belongs to the authorization class.
func IsAuthorization(err error) bool {
	var notCurrent NotCurrentPlayerError
	var forbidden ForbiddenActionError
	var terminal TerminalStateError
	return errors.As(err, &notCurrent) || errors.As(err, &forbidden) || errors.As(err, &terminal)
}

// Permitted reports whether the template step grants action. Reject is
// granted to whoever may sanction.
func Permitted(step domain.Player, action string) bool {
	switch action {
	case domain.ActionForward, domain.ActionShift:
		return step.CanForwardToPlayer
	case domain.ActionReturn:
		return step.CanReturnToPlayer
	case domain.ActionReturnToCitizen:
		return step.CanReturnToCitizen
	case domain.ActionSanction, domain.ActionReject:
		return step.CanSanction
	case domain.ActionPull:
		return step.CanPull
	default:
		return false
	}
}

// CheckAction resolves the designation's permissions in svc and verifies action.
func CheckAction(svc domain.Service, designation, action string) error {
	step, ok := svc.StepFor(designation)
	if !ok {
		return ForbiddenActionError{Action: action, Designation: designation, Reason: "designation is not part of this service workflow"}
	}
	if !Permitted(step, action) {
		return ForbiddenActionError{Action: action, Designation: designation}
	}
	return nil
}
