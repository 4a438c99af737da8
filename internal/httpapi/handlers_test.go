package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/auth"
	"surveysync.org/internal/bulksync"
	"surveysync.org/internal/store/memory"
	"surveysync.org/internal/stream"
)

const (
	testPassword = "field-pass-1"
	testKey      = "session-key"
	deviceA      = "tablet-aaaa-0001"
	deviceB      = "tablet-bbbb-0002"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	audit   *audit.Recorder
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	rec := &audit.Recorder{}
	store.AddPartner("partner-p", "Partner P")
	store.AddPartner("partner-q", "Partner Q")
	store.AddSchool(bulksync.School{ID: "school-p", Name: "P School", DistrictID: "district-p", PartnerID: "partner-p", IsActive: true})
	store.AddSchool(bulksync.School{ID: "school-q", Name: "Q School", DistrictID: "district-q", PartnerID: "partner-q", IsActive: true})

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := []auth.User{
		{ID: "user-p", Email: "p@example.org", Name: "P Worker", Role: auth.RoleTeamMember, PartnerID: "partner-p"},
		{ID: "user-q", Email: "q@example.org", Name: "Q Worker", Role: auth.RoleTeamMember, PartnerID: "partner-q"},
		{ID: "user-admin", Email: "admin@example.org", Name: "Admin", Role: auth.RoleNationalAdmin},
	}
	for i := range users {
		u := users[i]
		u.PasswordHash = hash
		u.IsActive = true
		if err := store.Users(ctx).Create(ctx, &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	mgr, err := auth.NewManager(store, auth.WithSecret("test-secret"), auth.WithAuditor(rec))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	st := stream.New()
	proc := bulksync.NewProcessor(store, bulksync.WithAuditor(rec), bulksync.WithPublisher(st))

	api := New(ReadyProbe{}, "test", mgr, proc, st, Config{RateBurst: 1000, RatePerSec: 1000})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		audit:   rec,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if raw, ok := body.([]byte); ok {
			payload = raw
		} else if payload, err = json.Marshal(body); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

func (c *apiClient) login(email, deviceID string) loginResponse {
	c.t.Helper()
	resp := c.post("/api/auth/login", map[string]any{
		"email":      email,
		"password":   testPassword,
		"deviceId":   deviceID,
		"deviceInfo": "Field tablet",
	}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	out := decode[loginResponse](c.t, resp)
	if out.DeviceToken == "" || out.RefreshToken == "" {
		c.t.Fatalf("empty credentials issued: %+v", out)
	}
	return out
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type errorBody struct {
	Success        bool   `json:"success"`
	Valid          bool   `json:"valid"`
	Error          string `json:"error"`
	RequiresReauth bool   `json:"requiresReauth"`
	RequestID      string `json:"request_id"`
	ExistingID     string `json:"existingId"`
}

func form(uniqueID, schoolID string) map[string]any {
	return map[string]any{
		"localId":                   "local-" + uniqueID,
		"surveyUniqueId":            uniqueID,
		"surveyDate":                "2025-03-09",
		"districtId":                "district-p",
		"areaType":                  "rural",
		"schoolId":                  schoolID,
		"schoolType":                "government",
		"class":                     5,
		"section":                   "A",
		"rollNo":                    "17",
		"studentName":               "Student",
		"sex":                       "female",
		"age":                       10,
		"consent":                   "yes",
		"usesDistanceGlasses":       false,
		"presentingVaRightEye":      "6/6",
		"presentingVaLeftEye":       "6/9",
		"referredForRefraction":     false,
		"spectaclesPrescribed":      false,
		"referredToOphthalmologist": false,
	}
}

func syncItem(t *testing.T, uniqueID, schoolID string) bulksync.Item {
	t.Helper()
	data, err := json.Marshal(form(uniqueID, schoolID))
	if err != nil {
		t.Fatalf("marshal form: %v", err)
	}
	return bulksync.Item{
		LocalID:       "local-" + uniqueID,
		EncryptedData: string(data),
		Checksum:      bulksync.Checksum(string(data), testKey),
	}
}

func TestLoginVerifyLogoutFlow(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("P@Example.org", deviceA)
	if login.User.PartnerName != "Partner P" || login.User.Role != auth.RoleTeamMember {
		t.Fatalf("unexpected user payload: %+v", login.User)
	}
	if !login.RequiresPinSetup || login.Message != "Login successful" {
		t.Fatalf("unexpected login envelope: %+v", login)
	}

	resp := c.post("/api/auth/verify", nil, login.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected verify 200, got %d", resp.StatusCode)
	}
	verified := decode[verifyResponse](t, resp)
	if !verified.Valid || verified.DeviceID != deviceA || verified.User == nil || verified.User.ID != "user-p" {
		t.Fatalf("unexpected verify payload: %+v", verified)
	}

	resp = c.post("/api/auth/logout", map[string]any{"deviceId": deviceB}, login.DeviceToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on device mismatch, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/auth/logout", nil, login.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/auth/verify", nil, login.DeviceToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Valid || !body.RequiresReauth || body.Error != msgInvalidToken {
		t.Fatalf("unexpected verify rejection: %+v", body)
	}
	if len(c.audit.Find("device_logout")) != 1 {
		t.Fatalf("expected device_logout audit entry")
	}
}

func TestVerifyWithoutToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/api/auth/verify", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != msgNoToken {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	resp = c.post("/api/auth/verify", nil, "not.a.token")
	body = decode[errorBody](t, resp)
	if resp.StatusCode != http.StatusUnauthorized || body.RequiresReauth {
		t.Fatalf("a forged token must not ask for reauth: %d %+v", resp.StatusCode, body)
	}
}

func TestLoginValidation(t *testing.T) {
	c := newTestAPI(t)
	cases := []struct {
		name   string
		body   map[string]any
		status int
		error  string
	}{
		{"missing fields", map[string]any{"email": "p@example.org"}, http.StatusBadRequest, "Missing required fields: email, password, deviceId, deviceInfo"},
		{"bad email", map[string]any{"email": "nope", "password": "x", "deviceId": deviceA, "deviceInfo": "t"}, http.StatusBadRequest, "Invalid email format"},
		{"bad device", map[string]any{"email": "p@example.org", "password": "x", "deviceId": "short", "deviceInfo": "t"}, http.StatusBadRequest, "Invalid device ID format"},
		{"wrong password", map[string]any{"email": "p@example.org", "password": "wrong", "deviceId": deviceA, "deviceInfo": "t"}, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", map[string]any{"email": "x@example.org", "password": "wrong", "deviceId": deviceA, "deviceInfo": "t"}, http.StatusUnauthorized, "Invalid credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := c.post("/api/auth/login", tc.body, "")
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			body := decode[errorBody](t, resp)
			if body.Success || body.Error != tc.error {
				t.Fatalf("unexpected body: %+v", body)
			}
			if body.RequestID == "" {
				t.Fatalf("expected request_id in error body")
			}
		})
	}
	if got := len(c.audit.Find("login_failed")); got != 2 {
		t.Fatalf("expected 2 login_failed entries, got %d", got)
	}
}

func TestRefreshRotatesCredential(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("p@example.org", deviceA)

	resp := c.post("/api/auth/refresh", map[string]any{"refreshToken": login.RefreshToken, "deviceId": deviceB}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for another device, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "Invalid refresh token" {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	resp = c.post("/api/auth/refresh", map[string]any{"refreshToken": login.RefreshToken, "deviceId": deviceA}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d", resp.StatusCode)
	}
	refreshed := decode[refreshResponse](t, resp)
	if refreshed.DeviceToken == "" || refreshed.DeviceToken == login.DeviceToken {
		t.Fatalf("expected a rotated credential")
	}

	resp = c.post("/api/auth/verify", nil, login.DeviceToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("superseded credential must be rejected, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = c.post("/api/auth/verify", nil, refreshed.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated credential must verify, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/auth/logout", nil, refreshed.DeviceToken)
	resp.Body.Close()
	resp = c.post("/api/auth/refresh", map[string]any{"refreshToken": refreshed.RefreshToken, "deviceId": deviceA}, "")
	if body := decode[errorBody](t, resp); resp.StatusCode != http.StatusUnauthorized || body.Error != "No valid device token found for refresh" {
		t.Fatalf("unexpected refresh after logout: %d %+v", resp.StatusCode, body)
	}
}

type tokenList struct {
	Success bool              `json:"success"`
	Tokens  []deviceTokenView `json:"tokens"`
}

func TestDeviceTokenRevocation(t *testing.T) {
	c := newTestAPI(t)
	a := c.login("p@example.org", deviceA)
	b := c.login("p@example.org", deviceB)
	q := c.login("q@example.org", deviceA)

	list := decode[tokenList](t, c.get("/api/device-tokens", nil, a.DeviceToken))
	if len(list.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(list.Tokens))
	}
	var tabletB string
	current := 0
	for _, tok := range list.Tokens {
		if tok.DeviceID == deviceB {
			tabletB = tok.ID
		}
		if tok.IsCurrent {
			current++
			if tok.DeviceID != deviceA {
				t.Fatalf("wrong token flagged current: %+v", tok)
			}
		}
	}
	if tabletB == "" || current != 1 {
		t.Fatalf("unexpected token list: %+v", list.Tokens)
	}

	resp := c.post("/api/device-tokens/"+tabletB+"/revoke", nil, q.DeviceToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/device-tokens/"+tabletB+"/revoke", nil, a.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected revoke 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/device-tokens/"+tabletB+"/revoke", nil, a.DeviceToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on double revoke, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "Device token is already revoked" {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	// A revoked bearer still identifies its owner and may name itself by raw token.
	resp = c.post("/api/device-tokens/"+b.DeviceToken+"/revoke", nil, b.DeviceToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for revoked raw token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/device-tokens/00000000-0000-0000-0000-000000000000/revoke", nil, a.DeviceToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if len(c.audit.Find("device_token_revoked")) != 1 {
		t.Fatalf("expected one device_token_revoked entry")
	}
}

func TestRevokeAllDeviceTokens(t *testing.T) {
	c := newTestAPI(t)
	a := c.login("p@example.org", deviceA)
	c.login("p@example.org", deviceB)

	resp := c.do(http.MethodDelete, "/api/device-tokens", nil, a.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[struct {
		Revoked int `json:"revoked"`
	}](t, resp)
	if out.Revoked != 2 {
		t.Fatalf("expected 2 revoked, got %d", out.Revoked)
	}
	if c.store.ActiveTokenCount("user-p", deviceA) != 0 || c.store.ActiveTokenCount("user-p", deviceB) != 0 {
		t.Fatalf("expected no active tokens left")
	}
	resp = c.get("/api/device-tokens", nil, a.DeviceToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke all, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPartnerScopingEndToEnd(t *testing.T) {
	c := newTestAPI(t)
	p := c.login("p@example.org", deviceA)

	batch := map[string]any{
		"encryptionKey": testKey,
		"forms": []bulksync.Item{
			syncItem(t, "101-201-5-A-1", "school-p"),
			syncItem(t, "101-202-5-A-1", "school-q"),
		},
	}
	resp := c.post("/api/sync/upload", batch, p.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected upload 200, got %d", resp.StatusCode)
	}
	upload := decode[uploadResponse](t, resp)
	if !upload.Success || upload.Processed != 2 || len(upload.Results) != 2 {
		t.Fatalf("unexpected upload response: %+v", upload)
	}
	if !upload.Results[0].Success || upload.Results[0].SurveyID == "" || upload.Results[0].Ack == "" {
		t.Fatalf("own school must be accepted: %+v", upload.Results[0])
	}
	if upload.Results[1].Success || upload.Results[1].Error != bulksync.MsgAccessDenied {
		t.Fatalf("other partner's school must be denied: %+v", upload.Results[1])
	}

	resp = c.post("/api/surveys/submit", form("101-202-5-A-2", "school-q"), p.DeviceToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected submit 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/surveys/submit", form("101-201-5-A-1", "school-p"), p.DeviceToken)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected submit 409 for a synced record, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.ExistingID != upload.Results[0].SurveyID {
		t.Fatalf("expected existingId %s, got %+v", upload.Results[0].SurveyID, body)
	}

	statuses := decode[struct {
		Statuses map[string]statusView `json:"statuses"`
	}](t, c.post("/api/sync/status", map[string]any{"surveyIds": []string{"101-201-5-A-1", "101-202-5-A-1"}}, p.DeviceToken))
	if statuses.Statuses["101-201-5-A-1"].Status != bulksync.StatusSynced || statuses.Statuses["101-202-5-A-1"].Status != bulksync.StatusPending {
		t.Fatalf("unexpected statuses: %+v", statuses.Statuses)
	}

	resp = c.get("/api/schools/by-partner", url.Values{"partnerId": {"partner-q"}}, p.DeviceToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 listing another partner's schools, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	schools := decode[struct {
		Schools []schoolView `json:"schools"`
	}](t, c.get("/api/schools/by-partner", nil, p.DeviceToken))
	if len(schools.Schools) != 1 || schools.Schools[0].ID != "school-p" {
		t.Fatalf("unexpected schools: %+v", schools.Schools)
	}

	admin := c.login("admin@example.org", deviceB)
	resp = c.post("/api/surveys/submit", form("101-202-5-A-3", "school-q"), admin.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("administrative roles may submit anywhere, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if c.store.SurveyCount() != 2 {
		t.Fatalf("expected 2 persisted surveys, got %d", c.store.SurveyCount())
	}
}

func TestSyncUploadBatchErrors(t *testing.T) {
	c := newTestAPI(t)
	p := c.login("p@example.org", deviceA)
	cases := []struct {
		name  string
		body  map[string]any
		error string
	}{
		{"no forms", map[string]any{"encryptionKey": testKey}, "Forms array is required"},
		{"no key", map[string]any{"forms": []bulksync.Item{}}, "Encryption key is required"},
		{"too many", map[string]any{"encryptionKey": testKey, "forms": make([]bulksync.Item, bulksync.DefaultMaxBatch+1)}, "Maximum 100 forms allowed per bulk sync request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := c.post("/api/sync/upload", tc.body, p.DeviceToken)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if body := decode[uploadResponse](t, resp); body.Success || body.Error != tc.error {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestSyncSummaryListsSubmittedSurveys(t *testing.T) {
	c := newTestAPI(t)
	p := c.login("p@example.org", deviceA)
	resp := c.post("/api/surveys/submit", form("101-201-5-A-1", "school-p"), p.DeviceToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected submit 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	summary := decode[struct {
		TotalPending   int           `json:"totalPending"`
		LastSyncTime   time.Time     `json:"lastSyncTime"`
		PendingSurveys []pendingView `json:"pendingSurveys"`
	}](t, c.get("/api/sync/status", nil, p.DeviceToken))
	if summary.TotalPending != 1 || summary.PendingSurveys[0].SurveyUniqueID != "101-201-5-A-1" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.LastSyncTime.IsZero() {
		t.Fatalf("expected lastSyncTime")
	}
}

func TestCheckUniqueID(t *testing.T) {
	c := newTestAPI(t)
	p := c.login("p@example.org", deviceA)

	type check struct {
		IsValid          bool   `json:"isValid"`
		Exists           bool   `json:"exists"`
		ExistingSurveyID string `json:"existingSurveyId"`
	}
	got := decode[check](t, c.post("/api/surveys/unique-id", map[string]any{"surveyUniqueId": "bad id"}, p.DeviceToken))
	if got.IsValid {
		t.Fatalf("expected invalid id")
	}
	got = decode[check](t, c.post("/api/surveys/unique-id", map[string]any{"surveyUniqueId": "101-201-5-A-1"}, p.DeviceToken))
	if !got.IsValid || got.Exists {
		t.Fatalf("expected an available id: %+v", got)
	}
	resp := c.post("/api/surveys/unique-id", map[string]any{}, p.DeviceToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSyncEventsRequireAdministrativeRole(t *testing.T) {
	c := newTestAPI(t)
	p := c.login("p@example.org", deviceA)
	resp := c.get("/api/sync/events", nil, p.DeviceToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSyncEventsStreamFiltersByKind(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@example.org", deviceB)
	p := c.login("p@example.org", deviceA)

	resp := c.get("/api/sync/events", url.Values{"kind": {"bulk_sync"}}, admin.DeviceToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || lines.Text() != ": stream started" {
		t.Fatalf("expected stream preamble, got %q", lines.Text())
	}

	submit := c.post("/api/surveys/submit", form("101-201-5-A-30", "school-p"), p.DeviceToken)
	submit.Body.Close()
	upload := c.post("/api/sync/upload", map[string]any{
		"forms":         []bulksync.Item{syncItem(t, "101-201-5-A-31", "school-p")},
		"encryptionKey": testKey,
	}, p.DeviceToken)
	upload.Body.Close()

	for lines.Scan() {
		line := lines.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if line != "event: bulk_sync" {
			t.Fatalf("expected the bulk_sync event first, got %q", line)
		}
		break
	}
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), "data: ") {
		t.Fatalf("expected event data, got %q", lines.Text())
	}
	var evt stream.SyncEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines.Text(), "data: ")), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.UserID != "user-p" || evt.Total != 1 || evt.Succeeded != 1 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/api/device-tokens", "/api/sync/status", "/api/schools/by-partner"} {
		resp := c.get(path, nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
		if body := decode[errorBody](t, resp); body.Error != msgNoToken {
			t.Fatalf("%s: unexpected error %q", path, body.Error)
		}
	}
	resp := c.get("/api/nope", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.get(path, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

type failingChecker struct{ err error }

func (f failingChecker) Check(context.Context) error { return f.err }

func TestReadyHidesDependencyError(t *testing.T) {
	api := New(failingChecker{err: errors.New(`dial tcp 10.1.2.3:5432: password authentication failed for user "surveysync"`)},
		"test", nil, nil, nil, Config{})
	rec := httptest.NewRecorder()
	api.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "not_ready" || body["error"] != "dependency unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
	if strings.Contains(rec.Body.String(), "5432") || strings.Contains(rec.Body.String(), "surveysync") {
		t.Fatalf("readiness body leaks the underlying error: %s", rec.Body.String())
	}
}
