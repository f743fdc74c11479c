// Package scheduler drives periodic check runs. One pipeline execution runs
// every check over every source, turns the results into alerts, and sends
// the digest. At most one pipeline runs at a time: manual runs wait for the
// slot, timer ticks that find it busy are skipped.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcewatch/sourcewatch/internal/alerts"
	"github.com/sourcewatch/sourcewatch/internal/checks"
	"github.com/sourcewatch/sourcewatch/internal/config"
	"github.com/sourcewatch/sourcewatch/internal/store"
)

// Summary describes one completed pipeline run. NewAlerts carries the alerts
// the run actually created, so API and WebSocket consumers see what was
// raised, not just how many.
type Summary struct {
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Deep         bool          `json:"deep"`
	TotalChecks  int           `json:"total_checks"`
	OKCount      int           `json:"ok_count"`
	WarningCount int           `json:"warning_count"`
	ErrorCount   int           `json:"error_count"`
	NewAlerts    []store.Alert `json:"new_alerts"`
	DigestSent   bool          `json:"digest_sent"`
	DigestFailed bool          `json:"digest_failed"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	NextRun  time.Time     `json:"next_run"`
	JobCount int           `json:"job_count"`
	Sources  int           `json:"sources"`
	InFlight bool          `json:"in_flight"`
}

// Scheduler runs the check pipeline on a fixed interval. The sources
// function is consulted at the start of every run, so config reloads take
// effect on the next run without a restart.
type Scheduler struct {
	runner   *checks.Runner
	alerter  *alerts.Engine
	sources  func() []config.Source
	interval time.Duration
	deep     bool
	now      func() time.Time // injectable for deterministic tests

	onRun func(Summary)

	mu      sync.Mutex
	running bool
	nextRun time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	// runMu serializes pipeline executions. RunNow blocks on it; timer
	// ticks TryLock and skip when a run is already in flight.
	runMu    sync.Mutex
	inFlight bool
}

// New returns a stopped Scheduler.
func New(runner *checks.Runner, alerter *alerts.Engine, sources func() []config.Source, interval time.Duration, deep bool) *Scheduler {
	return &Scheduler{
		runner:   runner,
		alerter:  alerter,
		sources:  sources,
		interval: interval,
		deep:     deep,
		now:      time.Now,
	}
}

// SetOnRun registers a hook invoked after every completed run. Must be set
// before Start.
func (s *Scheduler) SetOnRun(fn func(Summary)) {
	s.onRun = fn
}

// Start begins the periodic loop. Calling Start on a running scheduler is a
// no-op and keeps the original interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.now().Add(s.interval)

	go s.loop(loopCtx)
	slog.Info("scheduler: started", "interval", s.interval, "deep", s.deep)
}

// Stop halts the timer and waits for any in-flight run to finish. The run
// itself is never interrupted: losing half a run's observations makes the
// history misleading.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.nextRun = s.now().Add(s.interval)
			s.mu.Unlock()

			if !s.runMu.TryLock() {
				slog.Warn("scheduler: tick skipped, run already in flight")
				continue
			}
			// Background, not ctx: Stop drains the current run rather
			// than cutting it short.
			if _, err := s.run(context.Background(), s.deep); err != nil {
				slog.Error("scheduler: run failed", "error", err)
			}
			s.runMu.Unlock()
		}
	}
}

// RunNow executes one pipeline run immediately, waiting for any in-flight
// run to finish first.
func (s *Scheduler) RunNow(ctx context.Context, deep bool) (Summary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, deep)
}

// run executes one pipeline pass. Caller must hold runMu.
func (s *Scheduler) run(ctx context.Context, deep bool) (Summary, error) {
	s.mu.Lock()
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	started := s.now().UTC()
	results, err := s.runner.RunAll(ctx, s.sources(), deep)
	if err != nil {
		return Summary{}, err
	}

	created, err := s.alerter.ProcessResults(ctx, results)
	if err != nil {
		return Summary{}, err
	}

	sent, err := s.alerter.SendDigest(ctx, created)
	var digestFailed bool
	if err != nil {
		// Delivery failure is not a run failure: the alerts exist and
		// stay unemailed for the next digest.
		slog.Error("scheduler: digest delivery failed", "error", err)
		digestFailed = true
	}

	counts := checks.CountByStatus(results)
	sum := Summary{
		StartedAt:    started,
		FinishedAt:   s.now().UTC(),
		Deep:         deep,
		TotalChecks:  len(results),
		OKCount:      counts[checks.StatusOK],
		WarningCount: counts[checks.StatusWarning],
		ErrorCount:   counts[checks.StatusError],
		NewAlerts:    created,
		DigestSent:   sent,
		DigestFailed: digestFailed,
	}
	if s.onRun != nil {
		s.onRun(sum)
	}
	return sum, nil
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:  s.running,
		Interval: s.interval,
		Sources:  len(s.sources()),
		InFlight: s.inFlight,
	}
	if s.running {
		st.NextRun = s.nextRun
		st.JobCount = 1
	}
	return st
}
