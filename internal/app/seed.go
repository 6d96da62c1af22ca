package app

import (
	"context"
	"fmt"

	"welfareflow/internal/config"
	"welfareflow/internal/repo"
)

// Seed imports the configured services, reference data and officers in one
// transaction. Existing rows are updated in place.
func Seed(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config required")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, svc := range cfg.Services {
		if err := r.UpsertService(ctx, tx, svc.Service()); err != nil {
			return fmt.Errorf("seed service %d: %w", svc.ID, err)
		}
	}
	for _, d := range cfg.Areas.Districts {
		if err := r.UpsertDistrict(ctx, tx, d); err != nil {
			return fmt.Errorf("seed district %d: %w", d.ID, err)
		}
	}
	for _, t := range cfg.Areas.Tehsils {
		if err := r.UpsertTehsil(ctx, tx, t); err != nil {
			return fmt.Errorf("seed tehsil %d: %w", t.ID, err)
		}
	}
	for _, o := range cfg.Officers {
		if err := r.UpsertOfficer(ctx, tx, o.Officer()); err != nil {
			return fmt.Errorf("seed officer %s: %w", o.Username, err)
		}
	}
	for _, b := range cfg.Banks {
		if err := r.UpsertBankBranch(ctx, tx, b); err != nil {
			return fmt.Errorf("seed bank %s: %w", b.IFSC, err)
		}
	}
	return tx.Commit()
}

// EnsureSeeded seeds from cfg (or the built-in sample) when no service exists yet.
// It reports whether seeding happened.
func EnsureSeeded(ctx context.Context, r repo.Repo, cfg *config.Config) (bool, error) {
	services, err := r.ListServices(ctx)
	if err != nil {
		return false, err
	}
	if len(services) > 0 {
		return false, nil
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := Seed(ctx, r, cfg); err != nil {
		return false, err
	}
	return true, nil
}
