// Kestrel - Ensemble risk scoring for transactions and SME credit.
// Copyright (c) 2025 kestrelhq
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelhq/kestrel/internal/api"
	"github.com/kestrelhq/kestrel/internal/bus"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/fraud"
	"github.com/kestrelhq/kestrel/internal/history"
	"github.com/kestrelhq/kestrel/internal/repository"
	"github.com/kestrelhq/kestrel/internal/review"
	"github.com/kestrelhq/kestrel/internal/risk"
	"github.com/kestrelhq/kestrel/internal/screening"
	"github.com/kestrelhq/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize fraud ensemble with the pattern classifier
	classifier := fraud.NewClassifier(repo, cacheImpl, busImpl)
	fraudEnsemble := fraud.NewEnsemble(classifier)
	slog.Info("fraud ensemble initialized", "strategies", len(fraud.AllStrategies()))

	// Initialize risk ensemble
	riskEnsemble := risk.NewEnsemble(repo, busImpl)
	slog.Info("risk ensemble initialized")

	// Initialize screening engine and load rules from the database.
	// Rules are configured via POST /screen-rules - no hardcoded defaults.
	screen, err := screening.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	if err := loadScreenRules(ctx, repo, screen); err != nil {
		slog.Error("failed to load screen rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screen.RulesCount())

	// Review ledger and trend analyzer
	ledger := review.NewLedger(repo)
	analyzer := history.NewAnalyzer(repo)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, fraudEnsemble)
		if err := asyncWorker.Start(worker.Config{ScoreTTL: time.Hour}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, fraudEnsemble, riskEnsemble, screen, ledger, analyzer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadScreenRules loads screen rules from the database into the engine.
func loadScreenRules(ctx context.Context, repo domain.Repository, screen *screening.Engine) error {
	rules, err := repo.ListScreenRules(ctx)
	if err != nil {
		slog.Warn("failed to list screen rules from database", "error", err)
		return nil // Start with no rules - they can be added via API
	}

	if len(rules) > 0 {
		slog.Info("loading screen rules from database", "count", len(rules))
		return screen.ReloadRules(rules)
	}

	slog.Info("no screen rules in database - configure via POST /screen-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║      Ensemble Risk Scoring Engine         ║")
	fmt.Println("  ║     Hover. Watch. Strike on signal.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /fraud/evaluate           - Score a transaction")
	fmt.Println("    GET  /transactions/{id}        - Get transaction by ID")
	fmt.Println("    GET  /transactions/{id}/score  - Get cached score snapshot")
	fmt.Println("    GET  /patterns                 - List detected patterns")
	fmt.Println("    GET  /patterns/stats           - Pattern statistics")
	fmt.Println("    POST /patterns/{id}/review     - Mark pattern reviewed")
	fmt.Println("    POST /risk/assess              - Assess SME credit risk")
	fmt.Println("    GET  /risk/users/{id}/trend    - Score trend report")
	fmt.Println("    GET  /assessments              - List risk assessments")
	fmt.Println("    POST /assessments/{id}/review  - Mark assessment reviewed")
	fmt.Println("    GET  /screen-rules             - List screen rules")
	fmt.Println("    POST /screen-rules             - Create a screen rule")
	fmt.Println("    POST /screen-rules/reload      - Hot-reload screen rules")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
