package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sourcewatch/sourcewatch/internal/alerts"
	"github.com/sourcewatch/sourcewatch/internal/api"
	"github.com/sourcewatch/sourcewatch/internal/checks"
	"github.com/sourcewatch/sourcewatch/internal/config"
	"github.com/sourcewatch/sourcewatch/internal/differ"
	"github.com/sourcewatch/sourcewatch/internal/fetch"
	"github.com/sourcewatch/sourcewatch/internal/metrics"
	"github.com/sourcewatch/sourcewatch/internal/scheduler"
	"github.com/sourcewatch/sourcewatch/internal/store"
	"github.com/sourcewatch/sourcewatch/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run all checks once and exit")
	deep := flag.Bool("deep", false, "use line-level content diffs (with -once, or as the scheduled default)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sourcewatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"sources", len(cfg.Sources),
		"interval", cfg.Monitor.Interval,
		"db_path", cfg.Monitor.DBPath,
		"http_port", cfg.Monitor.HTTPPort,
		"email", cfg.SMTP.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Monitor.DBPath)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Monitor.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Check pipeline: HTTP client -> six strategies -> bounded runner.
	client := fetch.NewClient(cfg.Monitor.FetchTimeout)
	engine := checks.NewEngine(client, differ.New(st))
	runner := checks.NewRunner(engine, st, cfg.Monitor.Workers)

	// Alert engine — deduplicated alerts plus the email digest.
	var mailer alerts.Mailer
	if cfg.SMTP.Enabled() {
		mailer = alerts.NewSMTPMailer(cfg.SMTP)
	} else {
		slog.Info("email delivery disabled (smtp host or recipient not set)")
	}
	alerter := alerts.NewEngine(st, mailer, cfg.Monitor.DedupWindow)

	// Sources are read through an atomic pointer so a config reload takes
	// effect on the next run without restarting the scheduler.
	var sources atomic.Pointer[[]config.Source]
	sources.Store(&cfg.Sources)
	sourcesFn := func() []config.Source { return *sources.Load() }

	scheduledDeep := cfg.Monitor.DeepDiff || *deep
	sched := scheduler.New(runner, alerter, sourcesFn, cfg.Monitor.Interval, scheduledDeep)

	if *once {
		sum, err := sched.RunNow(ctx, *deep)
		if err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
		slog.Info("run complete",
			"total", sum.TotalChecks,
			"ok", sum.OKCount,
			"warning", sum.WarningCount,
			"error", sum.ErrorCount,
			"new_alerts", len(sum.NewAlerts),
			"digest_sent", sum.DigestSent,
		)
		return
	}

	// WebSocket hub and Prometheus counters both feed off completed runs.
	hub := ws.New()
	collector := metrics.New()
	sched.SetOnRun(func(sum scheduler.Summary) {
		collector.RecordRun(sum)
		hub.Broadcast("run_summary", sum)
	})

	go func() {
		if err := config.Watch(ctx, *configPath, func(next *config.Config) {
			sources.Store(&next.Sources)
		}); err != nil {
			slog.Error("config watch failed", "err", err)
		}
	}()

	sched.Start(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, sched))
	httpMux.Handle("/metrics", collector)
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitor.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Monitor.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("sourcewatch shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
	sched.Stop()
	hub.Close()
}
