package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sourcewatch/sourcewatch/internal/scheduler"
	"github.com/sourcewatch/sourcewatch/internal/store"
)

const defaultListLimit = 50

// Trigger is the scheduler surface the API needs.
type Trigger interface {
	RunNow(ctx context.Context, deep bool) (scheduler.Summary, error)
	Status() scheduler.Status
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads monitoring state from the store and returns JSON responses.
type Handler struct {
	store *store.Store
	sched Trigger
	mux   *http.ServeMux
}

// New creates a Handler wired to the given store and scheduler and registers
// all routes.
func New(st *store.Store, sched Trigger) http.Handler {
	h := &Handler{store: st, sched: sched, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/api/v1/alerts", h.activeAlerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertSub) // subtree — recent, {id}/resolve
	h.mux.HandleFunc("/api/v1/checks", h.checks)
	h.mux.HandleFunc("/api/v1/checks/latest", h.latestChecks)
	h.mux.HandleFunc("/api/v1/run", h.run)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status — scheduler state plus each source's
// most recent check outcome.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest, err := h.store.LatestCheckBySource(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{
		Scheduler: h.sched.Status(),
		Sources:   make([]SourceStatus, 0, len(latest)),
	}
	for key, lc := range latest {
		resp.Sources = append(resp.Sources, SourceStatus{
			SourceKey: key,
			Status:    lc.Status,
			CheckedAt: lc.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// summary returns GET /api/v1/summary — aggregate alert counts.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sum, err := h.store.AlertSummary(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, SummaryResponse{
		TotalActive:      sum.TotalActive,
		WarningCount:     sum.WarningCount,
		CriticalCount:    sum.CriticalCount,
		ResolvedThisWeek: sum.ResolvedThisWeek,
	})
}

// activeAlerts returns GET /api/v1/alerts — all unresolved alerts.
func (h *Handler) activeAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alerts, err := h.store.ActiveAlerts(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toAlertResponses(alerts))
}

// alertSub dispatches the /api/v1/alerts/ subtree:
//
//	GET  /api/v1/alerts/recent        — newest alerts, resolved included
//	POST /api/v1/alerts/{id}/resolve  — mark an alert resolved
func (h *Handler) alertSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	switch {
	case rest == "":
		h.activeAlerts(w, r)

	case rest == "recent":
		h.recentAlerts(w, r)

	case strings.HasSuffix(rest, "/resolve"):
		h.resolveAlert(w, r, strings.TrimSuffix(rest, "/resolve"))

	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// recentAlerts returns the newest alerts regardless of resolution state.
func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alerts, err := h.store.RecentAlerts(r.Context(), limitParam(r))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toAlertResponses(alerts))
}

// resolveAlert marks an alert resolved. Resolving twice succeeds; an unknown
// ID is a 404.
func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	err := h.store.ResolveAlert(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "alert not found")
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	default:
		jsonResp(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
	}
}

// checks returns GET /api/v1/checks — check history, newest first. Accepts
// ?source= to filter and ?limit= to bound the page.
func (h *Handler) checks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recs, err := h.store.CheckHistory(r.Context(), r.URL.Query().Get("source"), limitParam(r))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]CheckResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, CheckResponse{
			ID:        rec.ID,
			SourceKey: rec.SourceKey,
			URL:       rec.URL,
			Kind:      rec.Kind,
			Status:    rec.Status,
			Detail:    rec.Detail,
			CheckedAt: rec.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// latestChecks returns GET /api/v1/checks/latest — each source's most
// recent check observation.
func (h *Handler) latestChecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest, err := h.store.LatestCheckBySource(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]SourceStatus, 0, len(latest))
	for key, lc := range latest {
		out = append(out, SourceStatus{
			SourceKey: key,
			Status:    lc.Status,
			CheckedAt: lc.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// run handles POST /api/v1/run — triggers an immediate check run and returns
// its summary. ?deep=true selects line-level diffing.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deep := r.URL.Query().Get("deep") == "true"
	sum, err := h.sched.RunNow(r.Context(), deep)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, sum)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// limitParam reads ?limit=, falling back to the default page size.
func limitParam(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

// toAlertResponses maps store alerts to their JSON representation.
func toAlertResponses(alerts []store.Alert) []AlertResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp := AlertResponse{
			ID:        a.ID,
			SourceKey: a.SourceKey,
			URL:       a.URL,
			Kind:      a.Kind,
			Severity:  a.Severity,
			Message:   a.Message,
			Emailed:   a.Emailed,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.ResolvedAt != nil {
			resp.ResolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	return out
}
