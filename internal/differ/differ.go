package differ

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sourcewatch/sourcewatch/internal/store"
)

// maxSummaryLen bounds the human-readable diff summary.
const maxSummaryLen = 500

// Differ compares page text against the last stored snapshot for a URL.
// It is the only writer of content snapshots.
type Differ struct {
	st *store.Store
}

// New returns a Differ backed by st.
func New(st *store.Store) *Differ {
	return &Differ{st: st}
}

// LightResult is the outcome of a hash-only comparison.
type LightResult struct {
	Changed      bool
	PreviousHash string // empty on first observation
	CurrentHash  string
}

// DeepResult is the outcome of a full line-level comparison.
type DeepResult struct {
	Changed      bool
	PctChanged   float64
	Summary      string
	AddedLines   int
	RemovedLines int
	PreviousHash string
	CurrentHash  string
}

// Fingerprint returns the hex sha256 digest of text after normalization
// (case-folded, whitespace runs collapsed). Two texts that differ only in
// whitespace run-length or letter case share a fingerprint.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LightCheck compares text's fingerprint against the latest stored snapshot
// for url. A URL seen for the first time gets a snapshot and reports
// unchanged — a brand-new URL never alerts on its first check. On change a
// new snapshot is stored.
func (d *Differ) LightCheck(ctx context.Context, url, text string) (LightResult, error) {
	hash := Fingerprint(text)

	prev, err := d.st.LatestSnapshot(ctx, url)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := d.st.SaveSnapshot(ctx, store.Snapshot{URL: url, Hash: hash}); err != nil {
			return LightResult{}, fmt.Errorf("differ: first snapshot: %w", err)
		}
		slog.Info("differ: created first snapshot", "url", url)
		return LightResult{Changed: false, CurrentHash: hash}, nil
	}
	if err != nil {
		return LightResult{}, fmt.Errorf("differ: load snapshot: %w", err)
	}

	if prev.Hash == hash {
		return LightResult{Changed: false, PreviousHash: prev.Hash, CurrentHash: hash}, nil
	}

	if _, err := d.st.SaveSnapshot(ctx, store.Snapshot{URL: url, Hash: hash}); err != nil {
		return LightResult{}, fmt.Errorf("differ: save snapshot: %w", err)
	}
	slog.Info("differ: content changed", "url", url)
	return LightResult{Changed: true, PreviousHash: prev.Hash, CurrentHash: hash}, nil
}

// DeepDiff is LightCheck plus a line-level comparison. Snapshots written in
// deep mode retain the full extracted text. If the previous snapshot lacks
// stored text (it was taken in light mode), DeepDiff falls back to
// first-observation semantics instead of failing.
func (d *Differ) DeepDiff(ctx context.Context, url, text string) (DeepResult, error) {
	hash := Fingerprint(text)

	prev, err := d.st.LatestSnapshot(ctx, url)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DeepResult{}, fmt.Errorf("differ: load snapshot: %w", err)
	}
	if errors.Is(err, store.ErrNotFound) || !prev.HasText {
		if _, err := d.st.SaveSnapshot(ctx, store.Snapshot{URL: url, Hash: hash, Text: text, HasText: true}); err != nil {
			return DeepResult{}, fmt.Errorf("differ: first deep snapshot: %w", err)
		}
		slog.Info("differ: created first deep snapshot", "url", url)
		return DeepResult{Summary: "First snapshot", CurrentHash: hash}, nil
	}

	if prev.Hash == hash {
		return DeepResult{
			Summary:      "No changes",
			PreviousHash: prev.Hash,
			CurrentHash:  hash,
		}, nil
	}

	prevLines := difflib.SplitLines(prev.Text)
	curLines := difflib.SplitLines(text)

	ratio := difflib.NewMatcher(prevLines, curLines).Ratio()
	pctChanged := (1 - ratio) * 100

	ud := difflib.UnifiedDiff{
		A:       prevLines,
		B:       curLines,
		Context: 1,
	}
	diffText, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return DeepResult{}, fmt.Errorf("differ: unified diff: %w", err)
	}
	added, removed := countChangedLines(diffText)

	summary := diffText
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen] + "..."
	}

	if _, err := d.st.SaveSnapshot(ctx, store.Snapshot{URL: url, Hash: hash, Text: text, HasText: true}); err != nil {
		return DeepResult{}, fmt.Errorf("differ: save deep snapshot: %w", err)
	}

	slog.Info("differ: deep diff computed",
		"url", url,
		"pct_changed", fmt.Sprintf("%.1f", pctChanged),
		"added", added,
		"removed", removed,
	)
	return DeepResult{
		Changed:      true,
		PctChanged:   pctChanged,
		Summary:      summary,
		AddedLines:   added,
		RemovedLines: removed,
		PreviousHash: prev.Hash,
		CurrentHash:  hash,
	}, nil
}

// PreviousTextLength returns the length of the stored text in the latest
// snapshot for url. ok is false when no snapshot exists or it was taken in
// light mode. Used by the paywall check's length-reduction heuristic so
// snapshot access stays behind the Differ.
func (d *Differ) PreviousTextLength(ctx context.Context, url string) (length int, ok bool, err error) {
	snap, err := d.st.LatestSnapshot(ctx, url)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("differ: load snapshot: %w", err)
	}
	if !snap.HasText {
		return 0, false, nil
	}
	return len(snap.Text), true, nil
}

// countChangedLines counts added and removed lines in a unified diff body,
// excluding the +++/--- file headers.
func countChangedLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
