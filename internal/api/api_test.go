package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sourcewatch/sourcewatch/internal/api"
	"github.com/sourcewatch/sourcewatch/internal/scheduler"
	"github.com/sourcewatch/sourcewatch/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fakeSched struct {
	status   scheduler.Status
	summary  scheduler.Summary
	err      error
	runCalls int
	lastDeep bool
}

func (f *fakeSched) RunNow(_ context.Context, deep bool) (scheduler.Summary, error) {
	f.runCalls++
	f.lastDeep = deep
	return f.summary, f.err
}

func (f *fakeSched) Status() scheduler.Status { return f.status }

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedAlert(t *testing.T, st *store.Store, id, sourceKey, severity string) {
	t.Helper()
	err := st.SaveAlert(context.Background(), store.Alert{
		ID:        id,
		SourceKey: sourceKey,
		URL:       "https://docs.example.com/",
		Kind:      "link",
		Severity:  severity,
		Message:   sourceKey + " - link: Link broken: HTTP 404",
	})
	if err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
}

func seedCheck(t *testing.T, st *store.Store, sourceKey, status string, at time.Time) {
	t.Helper()
	_, err := st.SaveCheck(context.Background(), store.CheckRecord{
		SourceKey: sourceKey,
		URL:       "https://docs.example.com/",
		Kind:      "availability",
		Status:    status,
		Detail:    "Page is available",
		CheckedAt: at,
	})
	if err != nil {
		t.Fatalf("SaveCheck: %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/status ---------------------------------------------------------

func TestStatus(t *testing.T) {
	st := newStore(t)
	seedCheck(t, st, "python_docs", "ok", time.Now().UTC())
	sched := &fakeSched{status: scheduler.Status{Running: true, Interval: time.Hour, Sources: 1}}
	h := api.New(st, sched)

	rr := do(t, h, http.MethodGet, "/api/v1/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.StatusResponse
	decode(t, rr, &resp)
	if !resp.Scheduler.Running {
		t.Error("scheduler.running = false, want true")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].SourceKey != "python_docs" {
		t.Errorf("sources = %+v, want one python_docs entry", resp.Sources)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestActiveAlerts(t *testing.T) {
	st := newStore(t)
	seedAlert(t, st, "a1", "python_docs", "critical")
	seedAlert(t, st, "a2", "mdn", "warning")
	if err := st.ResolveAlert(context.Background(), "a2"); err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodGet, "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.AlertResponse
	decode(t, rr, &resp)
	if len(resp) != 1 || resp[0].ID != "a1" {
		t.Errorf("active alerts = %+v, want only a1", resp)
	}
}

func TestRecentAlerts_IncludesResolved(t *testing.T) {
	st := newStore(t)
	seedAlert(t, st, "a1", "python_docs", "critical")
	seedAlert(t, st, "a2", "mdn", "warning")
	if err := st.ResolveAlert(context.Background(), "a2"); err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodGet, "/api/v1/alerts/recent")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.AlertResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("recent alerts = %d, want 2", len(resp))
	}
	var sawResolved bool
	for _, a := range resp {
		if a.ID == "a2" && a.ResolvedAt != "" {
			sawResolved = true
		}
	}
	if !sawResolved {
		t.Error("resolved alert a2 missing or lacks resolved_at")
	}
}

func TestResolveAlert(t *testing.T) {
	st := newStore(t)
	seedAlert(t, st, "a1", "python_docs", "critical")
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodPost, "/api/v1/alerts/a1/resolve")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	// Resolving again is a no-op, not an error.
	rr = do(t, h, http.MethodPost, "/api/v1/alerts/a1/resolve")
	if rr.Code != http.StatusOK {
		t.Errorf("second resolve: got %d, want 200", rr.Code)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/alerts/nope/resolve")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/alerts/a1/resolve")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET resolve: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/checks ---------------------------------------------------------

func TestChecks_FilterAndLimit(t *testing.T) {
	st := newStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedCheck(t, st, "python_docs", "ok", base)
	seedCheck(t, st, "python_docs", "warning", base.Add(time.Minute))
	seedCheck(t, st, "mdn", "ok", base.Add(2*time.Minute))
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodGet, "/api/v1/checks")
	var all []api.CheckResponse
	decode(t, rr, &all)
	if len(all) != 3 {
		t.Errorf("unfiltered = %d, want 3", len(all))
	}

	rr = do(t, h, http.MethodGet, "/api/v1/checks?source=python_docs")
	var filtered []api.CheckResponse
	decode(t, rr, &filtered)
	if len(filtered) != 2 {
		t.Errorf("filtered = %d, want 2", len(filtered))
	}
	for _, c := range filtered {
		if c.SourceKey != "python_docs" {
			t.Errorf("filtered result from %q", c.SourceKey)
		}
	}

	rr = do(t, h, http.MethodGet, "/api/v1/checks?limit=1")
	var limited []api.CheckResponse
	decode(t, rr, &limited)
	if len(limited) != 1 {
		t.Fatalf("limited = %d, want 1", len(limited))
	}
	if limited[0].SourceKey != "mdn" {
		t.Errorf("newest first: got %q, want mdn", limited[0].SourceKey)
	}
}

func TestLatestChecks(t *testing.T) {
	st := newStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedCheck(t, st, "python_docs", "ok", base)
	seedCheck(t, st, "python_docs", "error", base.Add(time.Minute))
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodGet, "/api/v1/checks/latest")
	var resp []api.SourceStatus
	decode(t, rr, &resp)
	if len(resp) != 1 {
		t.Fatalf("latest = %d entries, want 1", len(resp))
	}
	if resp[0].Status != "error" {
		t.Errorf("latest status = %q, want error (most recent)", resp[0].Status)
	}
}

// --- /api/v1/run ------------------------------------------------------------

func TestRun(t *testing.T) {
	st := newStore(t)
	sched := &fakeSched{summary: scheduler.Summary{
		TotalChecks: 12,
		NewAlerts: []store.Alert{{
			ID: "a1", SourceKey: "python_docs", Kind: "link",
			Severity: "critical", Message: "python_docs - link: Link broken: HTTP 404",
		}},
	}}
	h := api.New(st, sched)

	rr := do(t, h, http.MethodPost, "/api/v1/run?deep=true")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp scheduler.Summary
	decode(t, rr, &resp)
	if resp.TotalChecks != 12 {
		t.Errorf("total_checks = %d, want 12", resp.TotalChecks)
	}
	if len(resp.NewAlerts) != 1 || resp.NewAlerts[0].ID != "a1" {
		t.Errorf("new_alerts = %+v, want the created alert carried through", resp.NewAlerts)
	}
	if sched.runCalls != 1 || !sched.lastDeep {
		t.Errorf("RunNow calls = %d deep = %v, want 1 call with deep", sched.runCalls, sched.lastDeep)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/run")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET run: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/summary --------------------------------------------------------

func TestSummary(t *testing.T) {
	st := newStore(t)
	seedAlert(t, st, "a1", "python_docs", "critical")
	seedAlert(t, st, "a2", "mdn", "warning")
	h := api.New(st, &fakeSched{})

	rr := do(t, h, http.MethodGet, "/api/v1/summary")
	var resp api.SummaryResponse
	decode(t, rr, &resp)
	if resp.TotalActive != 2 || resp.CriticalCount != 1 || resp.WarningCount != 1 {
		t.Errorf("summary = %+v", resp)
	}
}
