package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
	"welfareflow/internal/testutil"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	env testutil.Env
}

func newTestServer(t *testing.T, rl RateLimitConfig) *testServer {
	t.Helper()
	env := testutil.NewEnv(t)
	handler, err := New(Config{
		Engine:    env.Engine,
		BasePath:  "/v1",
		Auth:      AuthConfig{JWTSecret: testSecret},
		RateLimit: rl,
		Uploads:   UploadLimits{MaxBytes: env.Config.Uploads.MaxBytes, AllowedTypes: env.Config.Uploads.AllowedTypes},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, env: env}
}

func token(t *testing.T, username string) map[string]string {
	t.Helper()
	tok, err := SignToken(testSecret, username, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func submitBody(ref string) map[string]any {
	return map[string]any{
		"serviceId":       1,
		"referenceNumber": ref,
		"formDetails":     testutil.Form("Asha Devi"),
	}
}

func TestHealthAndAuthentication(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, body)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services", nil, token(t, "ghost"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", res.StatusCode)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, token(t, "tswo.bishnah"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, body)
	}
	var me domain.Officer
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Role != "TSWO" || me.AccessLevel != domain.LevelTehsil || me.AccessCode != 1 {
		t.Fatalf("unexpected officer %+v", me)
	}
}

func TestActionFlow(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()
	citizen := token(t, "citizen.demo")
	tswo := token(t, "tswo.bishnah")
	dswo := token(t, "dswo.jammu")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications", submitBody("REF-1"), citizen)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, body)
	}

	actionURL := srv.URL + "/v1/applications/REF-1/actions"
	res, body = doJSON(t, client, http.MethodPost, actionURL, map[string]any{"action": "Forward", "remarks": "verified"}, tswo)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forward: %d %s", res.StatusCode, body)
	}
	var ok ActionResponse
	if err := json.Unmarshal(body, &ok); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	if !ok.Status || ok.CurrentPlayer != 1 || ok.Response == "" {
		t.Fatalf("unexpected action response %+v", ok)
	}

	// The officer no longer holds the application.
	res, body = doJSON(t, client, http.MethodPost, actionURL, map[string]any{"action": "Forward"}, tswo)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, body)
	}
	var failed map[string]any
	_ = json.Unmarshal(body, &failed)
	if failed["status"] != false || failed["response"] == "" {
		t.Fatalf("unexpected failure envelope %s", body)
	}

	res, body = doJSON(t, client, http.MethodPost, actionURL, map[string]any{"action": "Forward"}, citizen)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("citizen action: expected 403, got %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/NOPE/actions", map[string]any{"action": "Forward"}, dswo)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services/1/applications?status=pending", nil, dswo)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("listing: %d %s", res.StatusCode, body)
	}
	var listing struct {
		Data         []map[string]any `json:"data"`
		TotalRecords int              `json:"totalRecords"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if len(listing.Data) != 1 || listing.Data[0]["referenceNumber"] != "REF-1" {
		t.Fatalf("unexpected listing %s", body)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services/1/applications", nil, citizen)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("citizen listing: expected 403, got %d %s", res.StatusCode, body)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services/1/applications?data_type=archive", nil, dswo)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad data type: expected 400, got %d", res.StatusCode)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/services/1/counts", nil, tswo)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("counts: %d %s", res.StatusCode, body)
	}
	var counts map[string]int
	_ = json.Unmarshal(body, &counts)
	if counts["forwarded"] != 1 || counts["total"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/REF-1/history?scope=InView&size=2", nil, citizen)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, body)
	}
	var hist struct {
		Data         []map[string]any `json:"data"`
		TotalRecords int              `json:"totalRecords"`
	}
	_ = json.Unmarshal(body, &hist)
	if hist.TotalRecords != 3 || len(hist.Data) != 2 {
		t.Fatalf("unexpected history %s", body)
	}
}

func TestApplicationAccessIsLimitedToParticipants(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()
	for _, o := range []domain.Officer{
		{Username: "citizen.other", Role: "Citizen", AccessLevel: domain.LevelState, UserType: domain.UserTypeCitizen},
		{Username: "tswo.rspura", Role: "TSWO", AccessLevel: domain.LevelTehsil, AccessCode: 2, UserType: domain.UserTypeOfficer},
	} {
		if err := srv.env.Engine.Repo.UpsertOfficer(srv.env.Ctx, nil, o); err != nil {
			t.Fatalf("seed %s: %v", o.Username, err)
		}
	}
	owner := token(t, "citizen.demo")
	other := token(t, "citizen.other")
	outsider := token(t, "tswo.rspura")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications", submitBody("REF-1"), owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, body)
	}
	appURL := srv.URL + "/v1/applications/REF-1"
	for _, path := range []string{"", "/history"} {
		for name, hdr := range map[string]map[string]string{"other citizen": other, "other tehsil": outsider} {
			res, body = doJSON(t, client, http.MethodGet, appURL+path, nil, hdr)
			if res.StatusCode != http.StatusForbidden {
				t.Fatalf("GET %s as %s: expected 403, got %d %s", path, name, res.StatusCode, body)
			}
		}
		for name, hdr := range map[string]map[string]string{"owner": owner, "step holder": token(t, "dswo.jammu")} {
			res, body = doJSON(t, client, http.MethodGet, appURL+path, nil, hdr)
			if res.StatusCode != http.StatusOK {
				t.Fatalf("GET %s as %s: %d %s", path, name, res.StatusCode, body)
			}
		}
	}

	srv.env.Act(t, "REF-1", testutil.TSWO, domain.ActionReturnToCitizen, engine.AdditionalDetails{EditableFields: []string{domain.FieldAccountNumber}})
	correction := map[string]any{"fields": map[string]any{domain.FieldAccountNumber: "998877665544"}}
	res, body = doJSON(t, client, http.MethodPost, appURL+"/resubmit", correction, other)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("resubmit by other citizen: expected 403, got %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, appURL+"/resubmit", correction, owner)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resubmit by owner: %d %s", res.StatusCode, body)
	}
	var app domain.CitizenApplication
	if err := json.Unmarshal(body, &app); err != nil {
		t.Fatalf("unmarshal application: %v", err)
	}
	if app.Status != domain.StatusPending || app.AccountNumber != "998877665544" || app.SubmittedBy != "citizen.demo" {
		t.Fatalf("unexpected application after resubmit %+v", app)
	}
}

func TestSanctionWithoutDocumentIsValidationFailure(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()
	srv.env.Submit(t, "REF-1", "Asha Devi")
	srv.env.Act(t, "REF-1", testutil.TSWO, domain.ActionForward, engine.AdditionalDetails{})
	srv.env.Act(t, "REF-1", testutil.DSWO, domain.ActionForward, engine.AdditionalDetails{})

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/REF-1/actions", map[string]any{"action": "Sanction"}, token(t, "jd.jammu"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, body)
	}
	if !strings.Contains(string(body), `"status":false`) {
		t.Fatalf("expected failure envelope, got %s", body)
	}
}

func TestGeneratedReferenceInPath(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()
	citizen := token(t, "citizen.demo")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications", submitBody(""), citizen)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, body)
	}
	var app domain.CitizenApplication
	if err := json.Unmarshal(body, &app); err != nil {
		t.Fatalf("unmarshal application: %v", err)
	}
	if !strings.HasPrefix(app.ReferenceNumber, "WF/1/2024/") {
		t.Fatalf("unexpected reference %s", app.ReferenceNumber)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/"+url.PathEscape(app.ReferenceNumber), nil, citizen)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", res.StatusCode, body)
	}
}

func TestExportAndValidate(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()
	srv.env.Submit(t, "REF-1", "Asha Devi")
	tswo := token(t, "tswo.bishnah")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/services/1/applications/export?format=csv&status=pending", nil, tswo)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export: %d %s", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "Report_All_") || !strings.Contains(cd, ".csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	if !strings.Contains(string(body), "REF-1") {
		t.Fatalf("export missing row: %s", body)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/validate/ifsc", map[string]any{"value": "JAKA0BISHNA"}, tswo)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, body)
	}
	if !strings.Contains(string(body), `"isValid":true`) {
		t.Fatalf("expected valid IFSC, got %s", body)
	}
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/validate/pan", map[string]any{"value": "X"}, tswo)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown validator: expected 400, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{})
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{"name": "ci"}, token(t, "dswo.jammu"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, body)
	}
	var created CreateAPIKeyResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	keyHeader := map[string]string{"X-Api-Key": created.Key}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, keyHeader)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "dswo.jammu") {
		t.Fatalf("me via api key: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/api-keys/"+created.ID, nil, keyHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete key: %d %s", res.StatusCode, body)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, keyHeader)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key: expected 401, got %d", res.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, RateLimitConfig{Requests: 2, Window: time.Minute})
	client := srv.Client()
	for i := 0; i < 2; i++ {
		res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("request %d: %d", i, res.StatusCode)
		}
	}
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.StatusCode)
	}
}
