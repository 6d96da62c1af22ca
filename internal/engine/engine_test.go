package engine_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/repo"
	"welfareflow/internal/testutil"
)

var (
	tswo = testutil.TSWO
	dswo = testutil.DSWO
	jd   = testutil.JD
)

func historyLen(t *testing.T, env testutil.Env, ref string) int {
	t.Helper()
	rows, err := env.Engine.Repo.ListHistory(env.Ctx, ref)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	return len(rows)
}

func TestSubmitInstantiatesWorkflow(t *testing.T) {
	env := testutil.NewEnv(t)
	a := env.Submit(t, "REF-1", "Ravi Kumar")
	if len(a.WorkFlow) != 3 || a.CurrentPlayer != 0 || a.Status != domain.StatusPending {
		t.Fatalf("unexpected application %+v", a)
	}
	want := []struct {
		code   int
		status string
	}{{1, domain.StatusPending}, {1, domain.StatusNotReached}, {1, domain.StatusNotReached}}
	for i, w := range want {
		if a.WorkFlow[i].AccessCode != w.code || a.WorkFlow[i].Status != w.status {
			t.Fatalf("player %d: %+v", i, a.WorkFlow[i])
		}
	}
	if a.ApplicantName != "Ravi Kumar" || a.AccountNumber != "123456789012" {
		t.Fatalf("denormalized fields not set: %+v", a)
	}
	if n := historyLen(t, env, "REF-1"); n != 1 {
		t.Fatalf("expected submitted row, got %d", n)
	}
	if _, err := env.Engine.Submit(env.Ctx, engine.SubmitRequest{ServiceID: 1, ReferenceNumber: "REF-1", FormDetails: testutil.Form("Ravi Kumar")}); err == nil {
		t.Fatalf("expected duplicate reference error")
	}
}

func TestSubmitRejectsTehsilOutsideDistrict(t *testing.T) {
	env := testutil.NewEnv(t)
	form := testutil.Form("Ravi Kumar")
	form.Set(domain.FieldTehsil, "4")
	_, err := env.Engine.Submit(env.Ctx, engine.SubmitRequest{ServiceID: 1, FormDetails: form})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestForwardAdvancesCurrentPlayer(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	a := env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	if a.CurrentPlayer != 1 || a.Status != domain.StatusPending {
		t.Fatalf("unexpected state after forward: current=%d status=%s", a.CurrentPlayer, a.Status)
	}
	if a.WorkFlow[0].Status != domain.StatusForwarded || a.WorkFlow[1].Status != domain.StatusPending {
		t.Fatalf("unexpected player statuses: %+v", a.WorkFlow)
	}
	if a.WorkFlow[0].CompletedAt == "" {
		t.Fatalf("expected completedAt on forwarding player")
	}
	rows, _ := env.Engine.Repo.ListHistory(env.Ctx, "REF-1")
	if len(rows) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last.ActionTaker != "TSWO" || last.ActionTaken != domain.ActionForward || last.LocationLevel != domain.LevelTehsil || last.LocationValue != 1 {
		t.Fatalf("unexpected history row %+v", last)
	}
	if last.ActionTakenDate != "01 Mar 2024 10:30:00 AM" {
		t.Fatalf("unexpected date %q", last.ActionTakenDate)
	}
	stored, err := env.Engine.Repo.GetApplication(env.Ctx, "REF-1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Version != 1 || stored.CurrentPlayer != 1 {
		t.Fatalf("stored state not updated: %+v", stored)
	}
}

func TestReturnUndoesForward(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	a := env.Act(t, "REF-1", dswo, domain.ActionReturn, engine.AdditionalDetails{})
	if a.CurrentPlayer != 0 || a.WorkFlow[0].Status != domain.StatusPending || a.WorkFlow[1].Status != domain.StatusReturned {
		t.Fatalf("return did not restore first player: %+v", a.WorkFlow)
	}
	if a.Status != domain.StatusPending {
		t.Fatalf("status should mirror current player, got %s", a.Status)
	}
	if n := historyLen(t, env, "REF-1"); n != 3 {
		t.Fatalf("expected 3 history rows, got %d", n)
	}
}

func TestAccessCodeMismatchIsNotCurrentPlayer(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	other := tswo
	other.Username = "tswo.rspura"
	other.AccessCode = 2
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: other, Action: "Forward"})
	var notCurrent auth.NotCurrentPlayerError
	if !errors.As(err, &notCurrent) {
		t.Fatalf("expected NotCurrentPlayerError, got %v", err)
	}
	if !auth.IsAuthorization(err) {
		t.Fatalf("expected authorization class")
	}
	stored, _ := env.Engine.Repo.GetApplication(env.Ctx, "REF-1")
	if stored.Version != 0 || stored.CurrentPlayer != 0 {
		t.Fatalf("state mutated on rejected action: %+v", stored)
	}
	if n := historyLen(t, env, "REF-1"); n != 1 {
		t.Fatalf("history mutated on rejected action: %d rows", n)
	}
}

func TestPermissionFlagsAreEnforced(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	for _, action := range []string{domain.ActionReturn, domain.ActionSanction, domain.ActionReject} {
		_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: action})
		var forbidden auth.ForbiddenActionError
		if !errors.As(err, &forbidden) {
			t.Fatalf("%s: expected ForbiddenActionError, got %v", action, err)
		}
	}
	if _, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: "Dance"}); err == nil {
		t.Fatalf("expected unknown action error")
	}
}

func TestSanctionNeedsSignedDocumentAndIsTerminal(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	env.Act(t, "REF-1", dswo, domain.ActionForward, engine.AdditionalDetails{})

	var verr engine.ValidationError
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: jd, Action: domain.ActionSanction})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error without document, got %v", err)
	}
	details := engine.AdditionalDetails{SignedDocumentPath: "2024/REF-1.pdf"}
	_, err = env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: jd, Action: domain.ActionSanction, Details: details})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for missing document, got %v", err)
	}
	if err := os.MkdirAll(filepath.Join(env.Config.Sanction.ArtifactRoot, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.Config.Sanction.ArtifactRoot, "2024", "REF-1.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := env.Act(t, "REF-1", jd, domain.ActionSanction, details)
	if a.Status != domain.StatusSanctioned || a.SanctionLetterPath != "2024/REF-1.pdf" || a.WorkFlow[2].Status != domain.StatusSanctioned {
		t.Fatalf("unexpected sanctioned state %+v", a)
	}
	before := historyLen(t, env, "REF-1")
	_, err = env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: jd, Action: domain.ActionReturn})
	var terminal auth.TerminalStateError
	if !errors.As(err, &terminal) {
		t.Fatalf("expected TerminalStateError, got %v", err)
	}
	if after := historyLen(t, env, "REF-1"); after != before {
		t.Fatalf("terminal application gained history rows: %d -> %d", before, after)
	}
}

func TestForwardFromLastPlayerFails(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	env.Act(t, "REF-1", dswo, domain.ActionForward, engine.AdditionalDetails{})
	// JD has no forward permission in the sample workflow.
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: jd, Action: domain.ActionForward})
	if !auth.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestPullReclaimsForwardedApplication(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	a := env.Act(t, "REF-1", tswo, domain.ActionPull, engine.AdditionalDetails{})
	if a.CurrentPlayer != 0 || a.WorkFlow[0].Status != domain.StatusPending || a.WorkFlow[1].Status != domain.StatusNotReached {
		t.Fatalf("unexpected state after pull: %+v", a.WorkFlow)
	}
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: dswo, Action: domain.ActionForward})
	var notCurrent auth.NotCurrentPlayerError
	if !errors.As(err, &notCurrent) {
		t.Fatalf("expected pulled-from officer to lose the application, got %v", err)
	}

	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	env.Act(t, "REF-1", dswo, domain.ActionForward, engine.AdditionalDetails{})
	_, err = env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: domain.ActionPull})
	if !errors.As(err, &notCurrent) {
		t.Fatalf("expected pull by non-adjacent officer to fail, got %v", err)
	}
}

func TestReturnToCitizenAndResubmit(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	a := env.Act(t, "REF-1", tswo, domain.ActionReturnToCitizen, engine.AdditionalDetails{EditableFields: []string{domain.FieldAccountNumber}})
	if a.Status != domain.StatusReturnToEdit || a.WorkFlow[0].Status != domain.StatusReturnToEdit || a.CurrentPlayer != 0 {
		t.Fatalf("unexpected state after return to citizen: %+v", a)
	}
	if _, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: domain.ActionForward}); !auth.IsAuthorization(err) {
		t.Fatalf("expected forward to be blocked while with citizen, got %v", err)
	}
	var verr engine.ValidationError
	_, err := env.Engine.Resubmit(env.Ctx, engine.ResubmitRequest{ReferenceNumber: "REF-1", Citizen: testutil.Applicant, Fields: map[string]any{domain.FieldApplicantName: "Someone Else"}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected non-editable field rejection, got %v", err)
	}
	a, err = env.Engine.Resubmit(env.Ctx, engine.ResubmitRequest{ReferenceNumber: "REF-1", Citizen: testutil.Applicant, Fields: map[string]any{domain.FieldAccountNumber: "998877665544"}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if a.Status != domain.StatusPending || a.WorkFlow[0].Status != domain.StatusPending || a.AccountNumber != "998877665544" || len(a.EditableFields) != 0 {
		t.Fatalf("unexpected state after resubmit: %+v", a)
	}
	rows, _ := env.Engine.Repo.ListHistory(env.Ctx, "REF-1")
	last := rows[len(rows)-1]
	if last.ActionTaker != domain.CitizenActor || last.ActionTaken != domain.ActionResubmitted {
		t.Fatalf("unexpected resubmit history row %+v", last)
	}
	if _, err := env.Engine.Resubmit(env.Ctx, engine.ResubmitRequest{ReferenceNumber: "REF-1", Citizen: testutil.Applicant, Fields: map[string]any{domain.FieldAccountNumber: "1"}}); !auth.IsAuthorization(err) {
		t.Fatalf("expected resubmit outside correction window to fail, got %v", err)
	}
}

func TestOnlyApplicantMayResubmit(t *testing.T) {
	env := testutil.NewEnv(t)
	a := env.Submit(t, "REF-1", "Ravi Kumar")
	if a.SubmittedBy != testutil.Applicant {
		t.Fatalf("submitter not recorded: %q", a.SubmittedBy)
	}
	env.Act(t, "REF-1", tswo, domain.ActionReturnToCitizen, engine.AdditionalDetails{EditableFields: []string{domain.FieldAccountNumber}})
	for _, who := range []string{"citizen.other", ""} {
		_, err := env.Engine.Resubmit(env.Ctx, engine.ResubmitRequest{ReferenceNumber: "REF-1", Citizen: who, Fields: map[string]any{domain.FieldAccountNumber: "111122223333"}})
		if !auth.IsAuthorization(err) {
			t.Fatalf("resubmit as %q: expected authorization error, got %v", who, err)
		}
	}
	a, _ = env.Engine.Repo.GetApplication(env.Ctx, "REF-1")
	if a.Status != domain.StatusReturnToEdit || a.AccountNumber == "111122223333" {
		t.Fatalf("foreign resubmit changed state: %+v", a)
	}
}

func TestAreaFieldsCannotBeReopenedForCitizen(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	var verr engine.ValidationError
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{
		ReferenceNumber: "REF-1",
		Officer:         tswo,
		Action:          domain.ActionReturnToCitizen,
		Details:         engine.AdditionalDetails{EditableFields: []string{domain.FieldDistrict, domain.FieldTehsil}},
	})
	if !errors.As(err, &verr) || verr.Field != "editableFields" {
		t.Fatalf("expected editableFields validation error, got %v", err)
	}
	a, err := env.Engine.Repo.GetApplication(env.Ctx, "REF-1")
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if a.Status != domain.StatusPending || a.CurrentPlayer != 0 || len(a.EditableFields) != 0 {
		t.Fatalf("rejected action changed state: %+v", a)
	}

	env.Act(t, "REF-1", tswo, domain.ActionReturnToCitizen, engine.AdditionalDetails{EditableFields: []string{domain.FieldAccountNumber}})
	_, err = env.Engine.Resubmit(env.Ctx, engine.ResubmitRequest{ReferenceNumber: "REF-1", Citizen: testutil.Applicant, Fields: map[string]any{domain.FieldDistrict: "4", domain.FieldTehsil: "5"}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected area change to be rejected, got %v", err)
	}
	a, _ = env.Engine.Repo.GetApplication(env.Ctx, "REF-1")
	if a.FormDetails.Value(domain.FieldTehsil) != "1" || a.WorkFlow[0].AccessCode != 1 || a.WorkFlow[1].AccessCode != 1 {
		t.Fatalf("area or routing changed: tehsil=%s workflow=%+v", a.FormDetails.Value(domain.FieldTehsil), a.WorkFlow)
	}
}

func TestShiftMovesApplicationToAnotherOffice(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	a := env.Act(t, "REF-1", tswo, domain.ActionShift, engine.AdditionalDetails{TargetAccessCode: 2})
	if len(a.WorkFlow) != 4 || a.CurrentPlayer != 1 {
		t.Fatalf("unexpected workflow after shift: %+v", a.WorkFlow)
	}
	if a.WorkFlow[0].Status != domain.StatusShifted || a.WorkFlow[1].AccessCode != 2 || a.WorkFlow[1].Status != domain.StatusPending {
		t.Fatalf("unexpected players after shift: %+v", a.WorkFlow)
	}
	for i, p := range a.WorkFlow {
		if p.PlayerID != i {
			t.Fatalf("player ids not renumbered: %+v", a.WorkFlow)
		}
	}
	rspura := tswo
	rspura.Username = "tswo.rspura"
	rspura.AccessCode = 2
	a = env.Act(t, "REF-1", rspura, domain.ActionForward, engine.AdditionalDetails{})
	if a.CurrentPlayer != 2 || a.WorkFlow[2].Designation != "DSWO" {
		t.Fatalf("forward after shift went to %d: %+v", a.CurrentPlayer, a.WorkFlow)
	}
	a = env.Act(t, "REF-1", dswo, domain.ActionReturn, engine.AdditionalDetails{})
	if a.CurrentPlayer != 1 {
		t.Fatalf("return after shift should reach the receiving office, got %d", a.CurrentPlayer)
	}
	var verr engine.ValidationError
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: rspura, Action: domain.ActionShift, Details: engine.AdditionalDetails{TargetAccessCode: 99}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected unknown target rejection, got %v", err)
	}
}

func TestConcurrentActionsAllowOneTransition(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: domain.ActionForward})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !auth.IsAuthorization(err) {
			t.Fatalf("losing action should fail authorization, got %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", success)
	}
	if n := historyLen(t, env, "REF-1"); n != 2 {
		t.Fatalf("expected exactly one action row, got %d", n)
	}
}

func TestPlayerIndexTracksWorkflow(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT player_id,status,is_current FROM application_players WHERE reference_number=? ORDER BY player_id`, "REF-1")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	type entry struct {
		status  string
		current int
	}
	var got []entry
	for rows.Next() {
		var id int
		var e entry
		if err := rows.Scan(&id, &e.status, &e.current); err != nil {
			t.Fatal(err)
		}
		got = append(got, e)
	}
	want := []entry{{domain.StatusForwarded, 0}, {domain.StatusPending, 1}, {domain.StatusNotReached, 0}}
	if len(got) != len(want) {
		t.Fatalf("expected %d index rows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index row %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestPoolMembership(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Ravi Kumar")
	if err := env.Engine.AddToPool(env.Ctx, dswo, 1, "REF-1"); !auth.IsAuthorization(err) {
		t.Fatalf("expected non-holder pooling to fail, got %v", err)
	}
	if err := env.Engine.AddToPool(env.Ctx, tswo, 1, "REF-1"); err != nil {
		t.Fatalf("add to pool: %v", err)
	}
	pooled, err := env.Engine.Repo.PoolReferences(env.Ctx, 1, tswo.AccessLevel, tswo.AccessCode)
	if err != nil || !pooled["REF-1"] {
		t.Fatalf("expected pooled application: %v %v", pooled, err)
	}
	env.Act(t, "REF-1", tswo, domain.ActionForward, engine.AdditionalDetails{})
	pooled, _ = env.Engine.Repo.PoolReferences(env.Ctx, 1, tswo.AccessLevel, tswo.AccessCode)
	if len(pooled) != 0 {
		t.Fatalf("transition should clear pool membership: %v", pooled)
	}
	if err := env.Engine.RemoveFromPool(env.Ctx, tswo, 1, "REF-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found removing absent entry, got %v", err)
	}
}

func TestUnknownAndCorruptApplications(t *testing.T) {
	env := testutil.NewEnv(t)
	_, err := env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "missing", Officer: tswo, Action: domain.ActionForward})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	env.Submit(t, "REF-1", "Ravi Kumar")
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE citizen_applications SET workflow_json='{broken' WHERE reference_number=?`, "REF-1"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.HandleAction(env.Ctx, engine.ActionRequest{ReferenceNumber: "REF-1", Officer: tswo, Action: domain.ActionForward})
	if !errors.Is(err, domain.ErrCorruptWorkflow) {
		t.Fatalf("expected corrupt workflow error, got %v", err)
	}
}
