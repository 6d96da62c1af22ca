// Package officer resolves authenticated usernames to officer records.
package officer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"welfareflow/internal/domain"
	"welfareflow/internal/repo"
)

var (
	ErrNotOfficer     = errors.New("user is not an officer")
	ErrNotParticipant = errors.New("user is neither the applicant nor an officer on the application")
)

type Store interface {
	GetOfficer(ctx context.Context, username string) (domain.Officer, error)
}

type Directory struct {
	Store Store
}

// Lookup returns the officer for username; repo.ErrNotFound when unknown.
func (d Directory) Lookup(ctx context.Context, username string) (domain.Officer, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Officer{}, fmt.Errorf("username required: %w", repo.ErrNotFound)
	}
	o, err := d.Store.GetOfficer(ctx, username)
	if err != nil {
		return domain.Officer{}, err
	}
	return o, nil
}

// RequireOfficer rejects citizen accounts on officer-only operations.
func RequireOfficer(o domain.Officer) error {
	if o.UserType == domain.UserTypeCitizen {
		return ErrNotOfficer
	}
	if o.Role == "" || !domain.IsAccessLevel(o.AccessLevel) {
		return fmt.Errorf("%w: incomplete officer record for %s", ErrNotOfficer, o.Username)
	}
	return nil
}

// CanView allows the applicant, admins, and officers holding any step of the
// application's workflow.
func CanView(a domain.CitizenApplication, o domain.Officer) error {
	if a.SubmittedBy != "" && o.Username == a.SubmittedBy {
		return nil
	}
	if o.UserType == domain.UserTypeAdmin {
		return nil
	}
	if RequireOfficer(o) == nil {
		for _, p := range a.WorkFlow {
			if p.Holds(o) {
				return nil
			}
		}
	}
	return ErrNotParticipant
}
