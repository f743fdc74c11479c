package checks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sourcewatch/sourcewatch/internal/config"
	"github.com/sourcewatch/sourcewatch/internal/store"
)

// Runner fans the check engine out over every configured page, bounded by a
// worker limit, persisting each result the moment it is produced. A crash
// mid-run loses at most the in-flight result.
type Runner struct {
	engine  *Engine
	st      *store.Store
	workers int
}

// NewRunner returns a Runner that writes results to st. workers bounds how
// many pages are checked concurrently; checks within one page always run
// sequentially.
func NewRunner(engine *Engine, st *store.Store, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{engine: engine, st: st, workers: workers}
}

// RunAll runs every check kind over every page of every source. Network and
// content failures are folded into error-status results and never abort the
// run; a persistence failure is fatal and cancels the remaining work — a
// monitor that silently drops observations is worse than one that stops.
func (r *Runner) RunAll(ctx context.Context, sources []config.Source, deep bool) ([]Result, error) {
	var pages int
	for _, src := range sources {
		pages += len(src.Pages)
	}
	slog.Info("checks: starting run",
		"sources", len(sources), "pages", pages, "deep", deep)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var mu sync.Mutex
	var all []Result

	for _, src := range sources {
		src := src
		for _, pg := range src.Pages {
			url := src.PageURL(pg)
			g.Go(func() error {
				for _, kind := range Kinds {
					res := r.engine.RunCheck(gctx, kind, src, url, deep)
					if _, err := r.st.SaveCheck(gctx, toRecord(res)); err != nil {
						return fmt.Errorf("persist %s/%s result: %w", res.SourceKey, res.Kind, err)
					}
					mu.Lock()
					all = append(all, res)
					mu.Unlock()
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := CountByStatus(all)
	slog.Info("checks: run complete",
		"total", len(all),
		"ok", counts[StatusOK],
		"warning", counts[StatusWarning],
		"error", counts[StatusError],
	)
	return all, nil
}

// CountByStatus tallies results per status.
func CountByStatus(results []Result) map[Status]int {
	counts := make(map[Status]int, 3)
	for _, res := range results {
		counts[res.Status]++
	}
	return counts
}

// toRecord converts a Result to its persisted form.
func toRecord(res Result) store.CheckRecord {
	return store.CheckRecord{
		SourceKey: res.SourceKey,
		URL:       res.URL,
		Kind:      string(res.Kind),
		Status:    string(res.Status),
		Detail:    res.Detail,
		CheckedAt: res.CheckedAt,
	}
}
