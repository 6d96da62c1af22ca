// Package testutil builds a migrated, seeded SQLite workspace for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"welfareflow/internal/app"
	"welfareflow/internal/config"
	"welfareflow/internal/db"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
	"welfareflow/internal/migrate"
)

// Clock is the fixed time every test engine reports.
var Clock = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

var (
	TSWO = domain.Officer{Username: "tswo.bishnah", Name: "Tehsil Officer", Role: "TSWO", AccessLevel: domain.LevelTehsil, AccessCode: 1, UserType: domain.UserTypeOfficer}
	DSWO = domain.Officer{Username: "dswo.jammu", Name: "District Officer", Role: "DSWO", AccessLevel: domain.LevelDistrict, AccessCode: 1, UserType: domain.UserTypeOfficer}
	JD   = domain.Officer{Username: "jd.jammu", Name: "Joint Director", Role: "JD", AccessLevel: domain.LevelDivision, AccessCode: 1, UserType: domain.UserTypeOfficer}
)

// Applicant is the seeded citizen account that owns applications made with Submit.
const Applicant = "citizen.demo"

type Env struct {
	Engine engine.Engine
	Config *config.Config
	Ctx    context.Context
	Dir    string
}

func NewEnv(t *testing.T) Env {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Sanction.ArtifactRoot = filepath.Join(dir, "signed")
	ctx := context.Background()
	eng := engine.New(conn, db.DialectSQLite, cfg, nil)
	if err := app.Seed(ctx, eng.Repo, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	eng.Now = func() time.Time { return Clock }
	return Env{Engine: eng, Config: cfg, Ctx: ctx, Dir: dir}
}

// Form returns a complete old age pension form for district 1, tehsil 1.
func Form(name string) domain.FormDetails {
	return domain.FormDetails{
		"Applicant Details": {
			{Label: "Applicant Name", Name: domain.FieldApplicantName, Value: name},
			{Label: "District", Name: domain.FieldDistrict, Value: "1"},
			{Label: "Tehsil", Name: domain.FieldTehsil, Value: "1"},
			{Label: "Mobile Number", Name: domain.FieldMobileNumber, Value: "9876543210"},
		},
		"Bank Details": {
			{Label: "Account Number", Name: domain.FieldAccountNumber, Value: "123456789012"},
			{Label: "IFSC Code", Name: domain.FieldIFSC, Value: "JAKA0BISHNA"},
		},
	}
}

func (e Env) Submit(t *testing.T, ref, name string) domain.CitizenApplication {
	t.Helper()
	a, err := e.Engine.Submit(e.Ctx, engine.SubmitRequest{ServiceID: 1, ReferenceNumber: ref, FormDetails: Form(name), SubmittedBy: Applicant})
	if err != nil {
		t.Fatalf("submit %s: %v", ref, err)
	}
	return a
}

func (e Env) Act(t *testing.T, ref string, o domain.Officer, action string, details engine.AdditionalDetails) domain.CitizenApplication {
	t.Helper()
	res, err := e.Engine.HandleAction(e.Ctx, engine.ActionRequest{ReferenceNumber: ref, Officer: o, Action: action, Remarks: action + " by " + o.Role, Details: details})
	if err != nil {
		t.Fatalf("%s %s by %s: %v", action, ref, o.Username, err)
	}
	return res.Application
}
