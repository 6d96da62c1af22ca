package engine

import (
	"context"
	"fmt"

	"welfareflow/internal/domain"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/officer"
	"welfareflow/internal/repo"
)

// AddToPool parks a pending application in the officer's pool. Only the
// officer currently holding the application may pool it.
func (e Engine) AddToPool(ctx context.Context, o domain.Officer, serviceID int, ref string) error {
	if err := officer.RequireOfficer(o); err != nil {
		return auth.ForbiddenActionError{Action: "Pool", Designation: o.Role, Reason: err.Error()}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	app, err := e.loadForUpdate(ctx, tx, ref)
	if err != nil {
		return err
	}
	if app.ServiceID != serviceID {
		return fmt.Errorf("application %s in service %d: %w", ref, serviceID, repo.ErrNotFound)
	}
	if domain.IsTerminal(app.Status) {
		return auth.TerminalStateError{Status: app.Status}
	}
	if _, err := actingPlayer(app, o, "Pool"); err != nil {
		return err
	}
	if err := e.Repo.AddToPool(ctx, tx, domain.PoolEntry{
		ServiceID:       serviceID,
		AccessLevel:     o.AccessLevel,
		AccessCode:      o.AccessCode,
		ReferenceNumber: ref,
		CreatedAt:       e.stamp(),
	}); err != nil {
		return fmt.Errorf("add to pool: %w", err)
	}
	return tx.Commit()
}

// RemoveFromPool returns a pooled application to the officer's main list.
func (e Engine) RemoveFromPool(ctx context.Context, o domain.Officer, serviceID int, ref string) error {
	removed, err := e.Repo.RemoveFromPool(ctx, nil, domain.PoolEntry{
		ServiceID:       serviceID,
		AccessLevel:     o.AccessLevel,
		AccessCode:      o.AccessCode,
		ReferenceNumber: ref,
	})
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("pool entry %s: %w", ref, repo.ErrNotFound)
	}
	return nil
}
