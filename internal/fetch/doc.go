// Package fetch provides the shared HTTP client for all checks: per-request
// timeouts, a stable User-Agent, redirect-hop tracking, and bounded body
// reads. Checks receive statuses and bodies and apply their own semantics;
// fetch never interprets a status code.
package fetch
