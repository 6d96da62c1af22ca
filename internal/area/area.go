// Package area turns an officer's access level and code into a display name.
package area

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"welfareflow/internal/domain"
)

// StateName is shown for State level officers.
const StateName = "J&K"

var divisions = map[int]string{1: "Jammu", 2: "Kashmir"}

// Tables is an in-memory snapshot of the district and tehsil reference data.
type Tables struct {
	Districts map[int]domain.District
	Tehsils   map[int]domain.Tehsil
}

func NewTables(districts []domain.District, tehsils []domain.Tehsil) Tables {
	t := Tables{
		Districts: make(map[int]domain.District, len(districts)),
		Tehsils:   make(map[int]domain.Tehsil, len(tehsils)),
	}
	for _, d := range districts {
		t.Districts[d.ID] = d
	}
	for _, th := range tehsils {
		t.Tehsils[th.ID] = th
	}
	return t
}

// Name resolves the area name; unknown levels or codes yield "".
func (t Tables) Name(level string, code int) string {
	switch {
	case strings.EqualFold(level, domain.LevelTehsil):
		return t.Tehsils[code].Name
	case strings.EqualFold(level, domain.LevelDistrict):
		return t.Districts[code].Name
	case strings.EqualFold(level, domain.LevelDivision):
		return divisions[code]
	case strings.EqualFold(level, domain.LevelState):
		return StateName
	default:
		return ""
	}
}

// Exists reports whether code names a known area at level.
func (t Tables) Exists(level string, code int) bool {
	return t.Name(level, code) != ""
}

// CodeFor returns the access code at level for an applicant living in
// district/tehsil. A tehsil must belong to the given district.
func (t Tables) CodeFor(level string, district, tehsil int) (int, error) {
	d, ok := t.Districts[district]
	if !ok {
		return 0, fmt.Errorf("unknown district %d", district)
	}
	switch {
	case strings.EqualFold(level, domain.LevelTehsil):
		th, ok := t.Tehsils[tehsil]
		if !ok {
			return 0, fmt.Errorf("unknown tehsil %d", tehsil)
		}
		if th.DistrictID != district {
			return 0, fmt.Errorf("tehsil %d is not in district %d", tehsil, district)
		}
		return tehsil, nil
	case strings.EqualFold(level, domain.LevelDistrict):
		return district, nil
	case strings.EqualFold(level, domain.LevelDivision):
		return d.Division, nil
	case strings.EqualFold(level, domain.LevelState):
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown access level %q", level)
	}
}

// Source provides the reference data.
type Source interface {
	ListDistricts(ctx context.Context) ([]domain.District, error)
	ListTehsils(ctx context.Context) ([]domain.Tehsil, error)
}

// Resolver caches the reference tables after the first load.
type Resolver struct {
	src    Source
	mu     sync.RWMutex
	tables *Tables
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

func (r *Resolver) Tables(ctx context.Context) (Tables, error) {
	r.mu.RLock()
	if r.tables != nil {
		t := *r.tables
		r.mu.RUnlock()
		return t, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables != nil {
		return *r.tables, nil
	}
	districts, err := r.src.ListDistricts(ctx)
	if err != nil {
		return Tables{}, fmt.Errorf("load districts: %w", err)
	}
	tehsils, err := r.src.ListTehsils(ctx)
	if err != nil {
		return Tables{}, fmt.Errorf("load tehsils: %w", err)
	}
	t := NewTables(districts, tehsils)
	r.tables = &t
	return t, nil
}

func (r *Resolver) Resolve(ctx context.Context, level string, code int) (string, error) {
	t, err := r.Tables(ctx)
	if err != nil {
		return "", err
	}
	return t.Name(level, code), nil
}

// Invalidate drops the cache so the next call reloads reference data.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.tables = nil
	r.mu.Unlock()
}
