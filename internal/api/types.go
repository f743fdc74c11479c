package api

import "github.com/sourcewatch/sourcewatch/internal/scheduler"

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Scheduler scheduler.Status `json:"scheduler"`
	Sources   []SourceStatus   `json:"sources"`
}

// SourceStatus is one source's most recent check outcome.
type SourceStatus struct {
	SourceKey string `json:"source_key"`
	Status    string `json:"status"`
	CheckedAt string `json:"checked_at"` // RFC3339
}

// AlertResponse is one alert in GET /api/v1/alerts and friends.
type AlertResponse struct {
	ID         string `json:"id"`
	SourceKey  string `json:"source_key"`
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Emailed    bool   `json:"emailed"`
	CreatedAt  string `json:"created_at"`            // RFC3339
	ResolvedAt string `json:"resolved_at,omitempty"` // RFC3339
}

// CheckResponse is one check record in GET /api/v1/checks.
type CheckResponse struct {
	ID        int64  `json:"id"`
	SourceKey string `json:"source_key"`
	URL       string `json:"url"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Detail    string `json:"detail"`
	CheckedAt string `json:"checked_at"` // RFC3339
}

// SummaryResponse is the payload for GET /api/v1/summary.
type SummaryResponse struct {
	TotalActive      int `json:"total_active"`
	WarningCount     int `json:"warning_count"`
	CriticalCount    int `json:"critical_count"`
	ResolvedThisWeek int `json:"resolved_this_week"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
