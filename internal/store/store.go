package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// resolvedWindow bounds the "recently resolved" count in Summary.
const resolvedWindow = 7 * 24 * time.Hour

const schemaSQL = `
CREATE TABLE IF NOT EXISTS check_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_key TEXT NOT NULL,
	url TEXT NOT NULL,
	check_kind TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	checked_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_history_source ON check_history(source_key, checked_at);

CREATE INDEX IF NOT EXISTS idx_check_history_url ON check_history(url, checked_at);

CREATE TABLE IF NOT EXISTS content_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content_text TEXT,
	taken_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_snapshots_url ON content_snapshots(url, taken_at);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	source_key TEXT NOT NULL,
	url TEXT NOT NULL,
	check_kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	emailed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(resolved_at) WHERE resolved_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(source_key, url, check_kind, created_at)
`

// CheckRecord is one persisted check observation. Records are append-only:
// once written they are never mutated or deleted.
type CheckRecord struct {
	ID        int64
	SourceKey string
	URL       string
	Kind      string
	Status    string
	Detail    string
	CheckedAt time.Time
}

// Snapshot is one content snapshot for a URL. HasText reports whether the
// full extracted text was retained (deep-diff mode).
type Snapshot struct {
	ID      int64
	URL     string
	Hash    string
	Text    string
	HasText bool
	TakenAt time.Time
}

// Alert is one deduplicated, human-facing issue derived from check results.
// An alert is active while ResolvedAt is nil.
type Alert struct {
	ID         string     `json:"id"`
	SourceKey  string     `json:"source_key"`
	URL        string     `json:"url"`
	Kind       string     `json:"kind"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Emailed    bool       `json:"emailed"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// LatestCheck is the most recent check observation for one source.
type LatestCheck struct {
	SourceKey string
	Status    string
	CheckedAt time.Time
}

// Summary holds aggregate alert counts for dashboards.
type Summary struct {
	TotalActive      int
	WarningCount     int
	CriticalCount    int
	ResolvedThisWeek int
}

// Store is the durable SQLite log of check outcomes, content snapshots, and
// alert lifecycle. All methods are safe for concurrent use; every write is a
// single-row insert or update, so writes from concurrent checks may
// interleave freely.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// table-lock errors under concurrent check writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init applies the embedded schema statement by statement.
func (s *Store) init() error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- check history ----------------------------------------------------------

// SaveCheck appends one check observation and returns its row ID.
func (s *Store) SaveCheck(ctx context.Context, rec CheckRecord) (int64, error) {
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO check_history (source_key, url, check_kind, status, detail, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SourceKey, rec.URL, rec.Kind, rec.Status, rec.Detail, rec.CheckedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: save check: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: save check id: %w", err)
	}
	return id, nil
}

// CheckHistory returns up to limit check records, newest first, optionally
// filtered by source key (empty string means all sources).
func (s *Store) CheckHistory(ctx context.Context, sourceKey string, limit int) ([]CheckRecord, error) {
	query := `SELECT id, source_key, url, check_kind, status, detail, checked_at
		FROM check_history`
	args := []any{}
	if sourceKey != "" {
		query += ` WHERE source_key = ?`
		args = append(args, sourceKey)
	}
	query += ` ORDER BY checked_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: check history: %w", err)
	}
	defer rows.Close()

	var out []CheckRecord
	for rows.Next() {
		var r CheckRecord
		if err := rows.Scan(&r.ID, &r.SourceKey, &r.URL, &r.Kind, &r.Status, &r.Detail, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("store: scan check record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestCheckBySource returns, per source, its single most recent check.
func (s *Store) LatestCheckBySource(ctx context.Context) (map[string]LatestCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_key, status, checked_at FROM check_history
		 WHERE id IN (SELECT MAX(id) FROM check_history GROUP BY source_key)`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: latest check by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]LatestCheck)
	for rows.Next() {
		var lc LatestCheck
		if err := rows.Scan(&lc.SourceKey, &lc.Status, &lc.CheckedAt); err != nil {
			return nil, fmt.Errorf("store: scan latest check: %w", err)
		}
		out[lc.SourceKey] = lc
	}
	return out, rows.Err()
}

// --- content snapshots ------------------------------------------------------

// SaveSnapshot appends a content snapshot. The full text is stored only when
// snap.HasText is set; light-mode snapshots keep just the fingerprint.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = s.now().UTC()
	}
	var text any
	if snap.HasText {
		text = snap.Text
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO content_snapshots (url, content_hash, content_text, taken_at)
		 VALUES (?, ?, ?, ?)`,
		snap.URL, snap.Hash, text, snap.TakenAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: save snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: save snapshot id: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot for url, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, url string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, content_hash, content_text, taken_at FROM content_snapshots
		 WHERE url = ? ORDER BY taken_at DESC, id DESC LIMIT 1`, url)
	return scanSnapshot(row)
}

// SnapshotHistory returns up to limit snapshots for url, newest first.
func (s *Store) SnapshotHistory(ctx context.Context, url string, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, content_hash, content_text, taken_at FROM content_snapshots
		 WHERE url = ? ORDER BY taken_at DESC, id DESC LIMIT ?`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot
	var text sql.NullString
	err := row.Scan(&snap.ID, &snap.URL, &snap.Hash, &text, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: scan snapshot: %w", err)
	}
	snap.Text = text.String
	snap.HasText = text.Valid
	return snap, nil
}

// --- alerts -----------------------------------------------------------------

// SaveAlert appends an alert unconditionally. Most callers want
// CreateAlertUnlessDuplicate instead.
func (s *Store) SaveAlert(ctx context.Context, a Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, source_key, url, check_kind, severity, message, emailed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceKey, a.URL, a.Kind, a.Severity, a.Message, a.Emailed, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: save alert: %w", err)
	}
	return nil
}

// CreateAlertUnlessDuplicate inserts a unless an unresolved alert with the
// same (source, URL, check kind) was created within window. The duplicate
// test and the insert run in one transaction so two concurrent callers can
// never both insert. Returns true when the alert was created.
func (s *Store) CreateAlertUnlessDuplicate(ctx context.Context, a Alert, window time.Duration) (bool, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	cutoff := a.CreatedAt.Add(-window).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin dedup tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts
		 WHERE source_key = ? AND url = ? AND check_kind = ?
		 AND created_at > ? AND resolved_at IS NULL`,
		a.SourceKey, a.URL, a.Kind, cutoff,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: duplicate test: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alerts (id, source_key, url, check_kind, severity, message, emailed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceKey, a.URL, a.Kind, a.Severity, a.Message, a.Emailed, a.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("store: insert alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit alert: %w", err)
	}
	return true, nil
}

// HasRecentAlert reports whether an unresolved alert with the given key was
// created within window of now.
func (s *Store) HasRecentAlert(ctx context.Context, sourceKey, url, kind string, window time.Duration) (bool, error) {
	cutoff := s.now().Add(-window).UTC()
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts
		 WHERE source_key = ? AND url = ? AND check_kind = ?
		 AND created_at > ? AND resolved_at IS NULL`,
		sourceKey, url, kind, cutoff,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: recent alert test: %w", err)
	}
	return count > 0, nil
}

// MarkAlertEmailed records a successful digest send for the alert.
func (s *Store) MarkAlertEmailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET emailed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark emailed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark emailed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveAlert marks the alert resolved. Resolving an already-resolved alert
// is a no-op; resolving an unknown ID returns ErrNotFound.
func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: resolve alert: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Either already resolved (fine) or unknown (not found).
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: resolve alert lookup: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveAlerts returns all unresolved alerts, newest first.
func (s *Store) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, source_key, url, check_kind, severity, message, emailed, created_at, resolved_at
		 FROM alerts WHERE resolved_at IS NULL ORDER BY created_at DESC, id DESC`)
}

// RecentAlerts returns up to limit alerts, resolved or not, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, source_key, url, check_kind, severity, message, emailed, created_at, resolved_at
		 FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var resolved sql.NullTime
		if err := rows.Scan(&a.ID, &a.SourceKey, &a.URL, &a.Kind, &a.Severity,
			&a.Message, &a.Emailed, &a.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		if resolved.Valid {
			t := resolved.Time
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AlertSummary returns aggregate counts: active alerts by severity plus
// alerts resolved within the last 7 days.
func (s *Store) AlertSummary(ctx context.Context) (Summary, error) {
	var sum Summary

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM alerts WHERE resolved_at IS NULL GROUP BY severity`)
	if err != nil {
		return Summary{}, fmt.Errorf("store: alert summary: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return Summary{}, fmt.Errorf("store: scan summary: %w", err)
		}
		sum.TotalActive += count
		switch severity {
		case "warning":
			sum.WarningCount = count
		case "critical":
			sum.CriticalCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("store: alert summary: %w", err)
	}

	cutoff := s.now().Add(-resolvedWindow).UTC()
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE resolved_at IS NOT NULL AND resolved_at > ?`,
		cutoff,
	).Scan(&sum.ResolvedThisWeek)
	if err != nil {
		return Summary{}, fmt.Errorf("store: resolved count: %w", err)
	}
	return sum, nil
}
