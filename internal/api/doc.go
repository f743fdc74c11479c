// Package api implements the HTTP REST API for sourcewatch.
//
// New(store, scheduler) returns an http.Handler that serves:
//
//	GET  /api/v1/status              — scheduler state + latest check per source
//	GET  /api/v1/summary             — aggregate alert counts
//	GET  /api/v1/alerts              — active (unresolved) alerts
//	GET  /api/v1/alerts/recent       — newest alerts, resolved included
//	POST /api/v1/alerts/{id}/resolve — mark an alert resolved; 404 if unknown
//	GET  /api/v1/checks              — check history (?source=, ?limit=)
//	GET  /api/v1/checks/latest       — latest check per source
//	POST /api/v1/run                 — run all checks now (?deep=true)
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for unsupported methods
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
