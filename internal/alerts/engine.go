package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourcewatch/sourcewatch/internal/checks"
	"github.com/sourcewatch/sourcewatch/internal/store"
)

// Severity levels carried on alerts. Severity is a pure function of the
// check status: error results are critical, warning results are warnings,
// and ok results never alert.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// SeverityFor maps a check status to an alert severity. The second return
// is false for statuses that never produce alerts.
func SeverityFor(status checks.Status) (string, bool) {
	switch status {
	case checks.StatusError:
		return SeverityCritical, true
	case checks.StatusWarning:
		return SeverityWarning, true
	default:
		return "", false
	}
}

// Engine turns non-ok check results into deduplicated alerts and delivers
// them by email. A nil mailer disables delivery but not alert creation.
type Engine struct {
	st     *store.Store
	mailer Mailer
	window time.Duration
	now    func() time.Time // injectable for deterministic tests
}

// NewEngine returns an Engine deduplicating within window. mailer may be nil.
func NewEngine(st *store.Store, mailer Mailer, window time.Duration) *Engine {
	return &Engine{
		st:     st,
		mailer: mailer,
		window: window,
		now:    time.Now,
	}
}

// ProcessResults creates one alert per non-ok result, suppressing duplicates
// of unresolved alerts raised within the dedup window. It returns only the
// alerts actually created this call; the slice is never nil so callers can
// embed it in JSON payloads directly.
func (e *Engine) ProcessResults(ctx context.Context, results []checks.Result) ([]store.Alert, error) {
	created := make([]store.Alert, 0, len(results))
	for _, res := range results {
		severity, ok := SeverityFor(res.Status)
		if !ok {
			continue
		}
		a := store.Alert{
			ID:        uuid.NewString(),
			SourceKey: res.SourceKey,
			URL:       res.URL,
			Kind:      string(res.Kind),
			Severity:  severity,
			Message:   fmt.Sprintf("%s - %s: %s", res.SourceKey, res.Kind, res.Detail),
			CreatedAt: e.now().UTC(),
		}
		inserted, err := e.st.CreateAlertUnlessDuplicate(ctx, a, e.window)
		if err != nil {
			return created, fmt.Errorf("alerts: create for %s/%s: %w", res.SourceKey, res.Kind, err)
		}
		if !inserted {
			slog.Debug("alerts: duplicate suppressed",
				"source", res.SourceKey, "kind", res.Kind, "url", res.URL)
			continue
		}
		created = append(created, a)
	}
	return created, nil
}

// SendDigest renders an HTML digest of the given alerts and emails it. On
// success every alert is marked emailed; when the send fails, none are, so
// they ride along in the next digest. Returns true only when a digest was
// actually delivered.
func (e *Engine) SendDigest(ctx context.Context, alerts []store.Alert) (bool, error) {
	if len(alerts) == 0 || e.mailer == nil {
		return false, nil
	}

	subject, body, err := renderDigest(alerts, e.now().UTC())
	if err != nil {
		return false, fmt.Errorf("alerts: render digest: %w", err)
	}
	if err := e.mailer.Send(ctx, subject, body); err != nil {
		return false, fmt.Errorf("alerts: send digest: %w", err)
	}

	for _, a := range alerts {
		if err := e.st.MarkAlertEmailed(ctx, a.ID); err != nil {
			return true, fmt.Errorf("alerts: mark emailed %s: %w", a.ID, err)
		}
	}
	slog.Info("alerts: digest sent", "alerts", len(alerts))
	return true, nil
}

// SendAlert delivers a single alert immediately, outside the digest cycle,
// and marks it emailed on success.
func (e *Engine) SendAlert(ctx context.Context, a store.Alert) error {
	if e.mailer == nil {
		return nil
	}
	subject, body, err := renderAlert(a)
	if err != nil {
		return fmt.Errorf("alerts: render alert: %w", err)
	}
	if err := e.mailer.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("alerts: send alert %s: %w", a.ID, err)
	}
	if err := e.st.MarkAlertEmailed(ctx, a.ID); err != nil {
		return fmt.Errorf("alerts: mark emailed %s: %w", a.ID, err)
	}
	return nil
}
