package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fitforge "github.com/ibarani/fitforge"
	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/coach"
	"github.com/ibarani/fitforge/internal/config"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/ingest"
	"github.com/ibarani/fitforge/internal/mcp"
	"github.com/ibarani/fitforge/internal/metrics"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/server"
	"github.com/ibarani/fitforge/internal/session"
	"github.com/ibarani/fitforge/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// loggingTrigger stands in for the analysis runner when no analyzer is configured.
type loggingTrigger struct{ log *slog.Logger }

func (t loggingTrigger) Trigger(ev models.CycleClosed) {
	t.log.Info("cycle closed, analysis disabled", "user", ev.UserID, "cycle", ev.CycleNumber)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("FitForge starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Template catalog
	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		cat, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			log.Error("failed to load templates", "path", cfg.Catalog.Path, "error", err)
			os.Exit(1)
		}
	}
	log.Info("templates loaded", "count", len(cat.All()))

	// Store
	ctx := context.Background()
	var store storage.Gateway
	switch cfg.Database.Driver {
	case config.DriverMemory:
		store = storage.NewMemory()
		log.Warn("using in-memory store, data is lost on exit")
	default:
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, fitforge.MigrationsFS, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		if *migrateOnly {
			log.Info("migrate-only: exiting")
			return
		}

		db, err := storage.New(ctx, dsn, cfg.Storage.Timeout)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db
		log.Info("database connected")
	}

	outbox, err := storage.OpenOutbox(cfg.Outbox.Dir)
	if err != nil {
		log.Error("failed to open outbox", "error", err)
		os.Exit(1)
	}
	defer outbox.Close()

	// Metrics
	reg := metrics.NewRegistry()
	m := metrics.NewManager(reg)

	// Cycle tracking and analysis
	cycles := cycle.NewTracker(cat, store, cycle.Options{ResetOnConfigChange: cfg.Cycle.ResetOnChange()}, log)
	cycles.Subscribe(m.CycleClosed)
	suggestions := analysis.NewSuggestions(store, cfg.Analysis.SuggestionTTL)

	var (
		trigger coach.AnalysisTrigger = loggingTrigger{log: log}
		runner  *analysis.Runner
	)
	if cfg.Analysis.Enabled() {
		client := analysis.NewAnthropicClient(cfg.Analysis.BaseURL, cfg.Analysis.APIKey, cfg.Analysis.Model, cfg.Analysis.MaxTokens)
		builder := analysis.NewBuilder(client, store, suggestions, cfg.Analysis.Timeout, log)
		runner = analysis.NewRunner(builder, store, analysis.RetryPolicy{
			MaxAttempts:    cfg.Analysis.MaxAttempts,
			InitialBackoff: cfg.Analysis.Backoff,
			MaxBackoff:     cfg.Analysis.MaxBackoff,
		}, m, log)
		trigger = runner
		log.Info("analysis enabled", "model", cfg.Analysis.Model)
	} else {
		log.Warn("no analysis API key configured, closed cycles will not be analyzed")
	}
	cycles.Subscribe(trigger.Trigger)

	// Sessions
	timers := session.NewTimers(func(sig session.RestSignal) {
		log.Debug("rest started", "user", sig.UserID, "exercise", sig.Exercise, "seconds", sig.Seconds)
	})
	tracker := session.NewTracker(cat, session.Options{
		DefaultRestSeconds: cfg.Session.DefaultRestSeconds,
		ZeroSetRequiresRPE: cfg.Session.RequireZeroSetRPE(),
	}, timers)
	drafts := session.NewDrafts(store, cfg.Session.DraftDebounce, cfg.Storage.Timeout, log)
	ch := coach.New(cat, tracker, store, cycles, trigger, outbox, log)
	sessions := session.NewService(cat, tracker, timers, drafts, store, ch, log)
	metrics.RegisterOutboxDepth(reg, ch.Pending)

	replayCtx, stopReplay := context.WithCancel(ctx)
	defer stopReplay()
	go ch.RunReplay(replayCtx, cfg.Outbox.ReplayInterval)

	// Start server on tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server
	var identity func(http.Handler) http.Handler

	switch cfg.Auth.Mode {
	case config.AuthJWT:
		identity = server.BearerAuth([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	case config.AuthNone:
		identity = server.DevIdentity(cfg.Auth.DevUser)
		log.Warn("authentication disabled", "user", cfg.Auth.DevUser)
	}

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		if cfg.Auth.Mode == config.AuthTailscale {
			identity = server.TailscaleIdentity(lc, log)
		}

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "auth", cfg.Auth.Mode)
	}

	srv := server.New(server.Deps{
		Catalog:     cat,
		Sessions:    sessions,
		Coach:       ch,
		Cycles:      cycles,
		Suggestions: suggestions,
		Store:       store,
		Metrics:     m,
		Importer:    ingest.NewImporter(cat, ch, store, log),
	}, identity, log)
	srv.Mount("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mcpSrv := mcp.New(&mcp.Local{Catalog: cat, Cycles: cycles, Suggestions: suggestions, Store: store}, Version, log)
	srv.MountWithIdentity("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, server.UserID(r))
		}),
	))

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopReplay()
	if err := drafts.Close(shutdownCtx); err != nil {
		log.Error("flushing drafts", "error", err)
	}
	if runner != nil {
		if err := runner.Close(shutdownCtx); err != nil {
			log.Error("waiting for analyses", "error", err)
		}
	}
	log.Info("server stopped")
}
