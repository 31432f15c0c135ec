package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetbook/internal/auth"
	"budgetbook/internal/cashcount"
	"budgetbook/internal/services"
	"budgetbook/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := memory.New()
	srv := NewServer(":0", Dependencies{
		Store:               st,
		Projects:            services.NewProjectService(st),
		Transactions:        services.NewTransactionService(st, nil),
		Invitations:         services.NewInvitationService(st, nil, 0),
		CashCount:           cashcount.NewMemoryStore().WithClock(func() time.Time { return testNow }),
		Verifier:            auth.NewVerifier(testSecret, ""),
		WorkspaceTTL:        time.Minute,
		InvitationRetention: 24 * time.Hour,
		Now:                 func() time.Time { return testNow },
	})
	t.Cleanup(func() {
		srv.cacheManager.Stop()
		srv.rateLimiter.Stop()
	})
	return srv
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, "", userID, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

// call sends a request through the full middleware chain.
func call(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

type idBody struct {
	ID string `json:"id"`
}

func createProject(t *testing.T, srv *Server, token, name string) string {
	t.Helper()
	rr := call(t, srv, http.MethodPost, "/api/projects", token, `{"name":"`+name+`"}`)
	expectStatus(t, rr, http.StatusCreated)
	var p idBody
	decodeBody(t, rr, &p)
	if p.ID == "" {
		t.Fatal("created project has no id")
	}
	return p.ID
}

func TestHealthReadyMetrics(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := call(t, srv, http.MethodGet, path, "", "")
		expectStatus(t, rr, http.StatusOK)
	}

	rr := call(t, srv, http.MethodGet, "/readyz", "", "")
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decodeBody(t, rr, &ready)
	if ready.Status != "ready" || ready.Checks["backend"] != "ok" {
		t.Errorf("unexpected readiness %+v", ready)
	}

	rr = call(t, srv, http.MethodGet, "/metrics", "", "")
	expectStatus(t, rr, http.StatusOK)
	for _, name := range []string{"http_requests_total", "rate_limit_hits_total", "workspace_cache_entries", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rr := call(t, srv, http.MethodGet, "/api/projects", "", "")
	expectStatus(t, rr, http.StatusUnauthorized)
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 should carry WWW-Authenticate")
	}

	rr = call(t, srv, http.MethodGet, "/api/projects", "not-a-jwt", "")
	expectStatus(t, rr, http.StatusUnauthorized)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t)

	rr := call(t, srv, http.MethodGet, "/healthz", "", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Errorf("Content-Security-Policy = %q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 70; i++ {
		rr := call(t, srv, http.MethodGet, "/healthz", "", "")
		expectStatus(t, rr, http.StatusOK)
	}

	var last *httptest.ResponseRecorder
	for i := 0; i < 61; i++ {
		last = call(t, srv, http.MethodPost, "/api/projects", "", `{"name":"x"}`)
	}
	expectStatus(t, last, http.StatusTooManyRequests)
	if last.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	if srv.rateLimiter.GetMetrics().TotalHits != 1 {
		t.Errorf("TotalHits = %d, want 1", srv.rateLimiter.GetMetrics().TotalHits)
	}
}

func TestProjectAccessControl(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := tokenFor(t, "alice"), tokenFor(t, "bob")
	id := createProject(t, srv, alice, "Home")

	rr := call(t, srv, http.MethodGet, "/api/projects/"+id, bob, "")
	expectStatus(t, rr, http.StatusForbidden)

	rr = call(t, srv, http.MethodGet, "/api/projects", bob, "")
	expectStatus(t, rr, http.StatusOK)
	var list []idBody
	decodeBody(t, rr, &list)
	if len(list) != 0 {
		t.Errorf("bob should see no projects, got %d", len(list))
	}

	rr = call(t, srv, http.MethodGet, "/api/projects", alice, "")
	decodeBody(t, rr, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("alice should see her project, got %+v", list)
	}

	rr = call(t, srv, http.MethodDelete, "/api/projects/"+id, bob, "")
	expectStatus(t, rr, http.StatusForbidden)
}

func TestCreateProjectValidation(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"unknown field", `{"name":"x","owner":"bob"}`, http.StatusBadRequest},
		{"missing name", `{"description":"d"}`, http.StatusUnprocessableEntity},
		{"trailing data", `{"name":"x"}{"name":"y"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, srv, http.MethodPost, "/api/projects", alice, tt.body)
			expectStatus(t, rr, tt.want)
		})
	}
}

func TestCategoryAndFieldFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	id := createProject(t, srv, alice, "Home")
	base := "/api/projects/" + id

	rr := call(t, srv, http.MethodGet, base+"/categories", alice, "")
	expectStatus(t, rr, http.StatusOK)
	var cats []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeBody(t, rr, &cats)
	if len(cats) != 1 || cats[0].Name != "General" {
		t.Fatalf("expected the default category, got %+v", cats)
	}

	rr = call(t, srv, http.MethodPost, base+"/categories", alice, `{"name":"Food","color":"#ff0000"}`)
	expectStatus(t, rr, http.StatusCreated)

	rr = call(t, srv, http.MethodPost, base+"/categories", alice, `{"name":"Bad","color":"red"}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodPost, base+"/categories/1/move", alice, `{"direction":"up"}`)
	expectStatus(t, rr, http.StatusOK)
	decodeBody(t, rr, &cats)
	if len(cats) != 2 || cats[0].Name != "Food" {
		t.Fatalf("Food should be first after moving up, got %+v", cats)
	}

	rr = call(t, srv, http.MethodPost, base+"/categories/0/move", alice, `{"direction":"up"}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodPost, base+"/fields", alice, `{"name":"Shop"}`)
	expectStatus(t, rr, http.StatusCreated)

	rr = call(t, srv, http.MethodPost, base+"/fields", alice, `{"name":"shop"}`)
	expectStatus(t, rr, http.StatusConflict)

	rr = call(t, srv, http.MethodPut, base+"/fields/Missing", alice, `{"name":"Other"}`)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestTransactionFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	id := createProject(t, srv, alice, "Home")
	base := "/api/projects/" + id

	rr := call(t, srv, http.MethodPost, base+"/categories", alice, `{"name":"Food","color":"#ff0000"}`)
	expectStatus(t, rr, http.StatusCreated)
	var food idBody
	decodeBody(t, rr, &food)

	rr = call(t, srv, http.MethodPost, base+"/fields", alice, `{"name":"Shop"}`)
	expectStatus(t, rr, http.StatusCreated)

	rr = call(t, srv, http.MethodPost, base+"/transactions", alice,
		`{"date":"2024-03-02","amount":"-12.50","category_id":"`+food.ID+`","custom_data":{"Shop":"Market"}}`)
	expectStatus(t, rr, http.StatusCreated)
	var tx struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
	}
	decodeBody(t, rr, &tx)
	if tx.Currency != "USD" {
		t.Errorf("currency should default to the project's, got %q", tx.Currency)
	}

	rr = call(t, srv, http.MethodPost, base+"/transactions", alice, `{"date":"2024-03-01","amount":"abc"}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodGet, base+"/transactions?period=all", alice, "")
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Transactions []struct {
			ID           string `json:"id"`
			CategoryName string `json:"category_name"`
		} `json:"transactions"`
	}
	decodeBody(t, rr, &list)
	if len(list.Transactions) != 1 || list.Transactions[0].CategoryName != "Food" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = call(t, srv, http.MethodGet, base+"/transactions?period=forever", alice, "")
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodPut, base+"/fields/Shop", alice, `{"name":"Store"}`)
	expectStatus(t, rr, http.StatusOK)
	var report struct {
		Migrated int `json:"migrated"`
	}
	decodeBody(t, rr, &report)
	if report.Migrated != 1 {
		t.Errorf("migrated = %d, want 1", report.Migrated)
	}

	rr = call(t, srv, http.MethodGet, base+"/transactions/"+tx.ID, alice, "")
	expectStatus(t, rr, http.StatusOK)
	var got struct {
		CustomData map[string]any `json:"custom_data"`
	}
	decodeBody(t, rr, &got)
	if got.CustomData["Store"] != "Market" {
		t.Errorf("custom data not migrated: %+v", got.CustomData)
	}

	rr = call(t, srv, http.MethodGet, base+"/export.csv?period=all", alice, "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if body := rr.Body.String(); !strings.Contains(body, "Store") || !strings.Contains(body, "Market") {
		t.Errorf("csv missing renamed field: %q", body)
	}

	rr = call(t, srv, http.MethodGet, base+"/dashboard?period=all", alice, "")
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodGet, base+"/transactions/"+tx.ID+"/navigation?period=all", alice, "")
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodPost, base+"/transactions/bulk-delete", alice, `{"all":true}`)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodGet, base+"/transactions/"+tx.ID, alice, "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestInvitationFlow(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := tokenFor(t, "alice"), tokenFor(t, "bob")
	id := createProject(t, srv, alice, "Home")
	base := "/api/projects/" + id

	rr := call(t, srv, http.MethodPost, base+"/invitations", alice, `{"email":"not-an-email"}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodPost, base+"/invitations", alice, `{"email":"bob@example.com","role":"viewer"}`)
	expectStatus(t, rr, http.StatusCreated)
	var inv struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &inv)
	if inv.Token == "" {
		t.Fatal("new invitation should expose its token")
	}

	rr = call(t, srv, http.MethodPost, base+"/invitations", alice, `{"email":"bob@example.com","role":"viewer"}`)
	expectStatus(t, rr, http.StatusConflict)

	rr = call(t, srv, http.MethodGet, base+"/invitations", alice, "")
	expectStatus(t, rr, http.StatusOK)
	if strings.Contains(rr.Body.String(), inv.Token) {
		t.Error("listing must not reveal tokens")
	}

	rr = call(t, srv, http.MethodPost, "/api/invitations/accept", bob, `{"token":"`+inv.Token+`"}`)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodPost, "/api/invitations/accept", bob, `{"token":"`+inv.Token+`"}`)
	expectStatus(t, rr, http.StatusGone)

	rr = call(t, srv, http.MethodGet, base+"/transactions", bob, "")
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodPost, base+"/transactions", bob, `{"date":"2024-03-01","amount":"5"}`)
	expectStatus(t, rr, http.StatusForbidden)

	rr = call(t, srv, http.MethodPost, "/api/invitations/cleanup", bob, "")
	expectStatus(t, rr, http.StatusOK)
}

func TestCashCountFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := tokenFor(t, "alice")
	id := createProject(t, srv, alice, "Till")
	base := "/api/projects/" + id + "/cashcount"

	rr := call(t, srv, http.MethodPut, base+"/denominations/500", alice, `{"count":3}`)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, srv, http.MethodPut, base+"/denominations/abc", alice, `{"count":1}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodPost, base+"/entries", alice, `{"name":"card","amount":"10"}`)
	expectStatus(t, rr, http.StatusOK)
	var ws struct {
		CashTotal float64 `json:"cash_total"`
		Total     float64 `json:"total"`
	}
	decodeBody(t, rr, &ws)
	if ws.CashTotal != 15 || ws.Total != 25 {
		t.Errorf("totals = %v/%v, want 15/25", ws.CashTotal, ws.Total)
	}

	rr = call(t, srv, http.MethodDelete, base+"/entries/4", alice, "")
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = call(t, srv, http.MethodDelete, base, alice, "")
	expectStatus(t, rr, http.StatusNoContent)

	rr = call(t, srv, http.MethodGet, base, alice, "")
	expectStatus(t, rr, http.StatusOK)
	var view struct {
		Worksheet struct {
			Total float64 `json:"total"`
		} `json:"worksheet"`
	}
	decodeBody(t, rr, &view)
	if view.Worksheet.Total != 0 {
		t.Errorf("reset worksheet total = %v", view.Worksheet.Total)
	}
}
