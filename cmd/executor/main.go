// Package main is the entry point for the flashloan executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/flashloan-executor/business/blockchain"
	blockchainDI "github.com/fd1az/flashloan-executor/business/blockchain/di"
	"github.com/fd1az/flashloan-executor/business/execution"
	executionDI "github.com/fd1az/flashloan-executor/business/execution/di"
	"github.com/fd1az/flashloan-executor/internal/apm"
	"github.com/fd1az/flashloan-executor/internal/config"
	"github.com/fd1az/flashloan-executor/internal/health"
	"github.com/fd1az/flashloan-executor/internal/logger"
	"github.com/fd1az/flashloan-executor/internal/metrics"
	"github.com/fd1az/flashloan-executor/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	planPath := flag.String("plan", "-", "Path to a plan JSON file (object or array), - for stdin")
	concurrency := flag.Int("concurrency", 8, "Maximum plans executed at once")
	listState := flag.String("list", "", "Print journaled attempts in this terminal state (e.g. TimedOut) and exit")
	listLimit := flag.Int("limit", 100, "Maximum attempts printed by -list")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flashloan-executor %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancellation reaches in-flight executions; they still report a result.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	var err error
	if *listState != "" {
		err = runList(ctx, *configPath, *listState, *listLimit, os.Stdout)
	} else {
		err = run(ctx, *configPath, *planPath, *concurrency)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, planPath string, concurrency int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	plans, err := readPlans(planPath)
	if err != nil {
		return err
	}

	// Logs go to stderr; stdout carries results only.
	var log *logger.Logger
	if cfg.App.IsDevelopment() {
		log = logger.NewConsole(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	} else {
		log = logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	}
	defer log.Sync()

	log.Info(ctx, "starting flashloan executor",
		"version", version,
		"environment", cfg.App.Environment,
		"plans", len(plans),
	)

	traceProvider, err := apm.NewTraceProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer traceProvider.Stop()

	meterProvider, err := metrics.NewMetricProvider(ctx, metrics.FromTelemetry(cfg.Telemetry)...)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		meterProvider.Shutdown(sctx)
	}()

	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricExporter != "otlp-grpc" {
		promServer := metrics.NewPrometheusServer(metrics.WithPort(cfg.Telemetry.PrometheusPort))
		go func() {
			if err := promServer.Start(); err != nil {
				log.Error(ctx, "prometheus server stopped", "error", err)
			}
		}()
		log.Info(ctx, "prometheus metrics server started", "addr", promServer.Addr())
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			promServer.Shutdown(sctx)
		}()
	}

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.WithoutCancel(ctx), "shutdown cleanup failed", "error", err)
		}
	}()

	// Define modules in dependency order
	modules := []monolith.Module{
		&blockchain.Module{}, // Must be first - provides node access and heads
		&execution.Module{},  // Depends on blockchain for node, gas oracle and heads
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	if cfg.Health.Enabled {
		healthServer := newHealthServer(cfg, mono, log)
		healthServer.Start(ctx)
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			healthServer.Stop(sctx)
		}()
	}

	engine := executionDI.GetEngine(mono.Services())
	summary := executeAll(ctx, engine, plans, concurrency, os.Stdout)

	log.Info(ctx, "all plans finished",
		"confirmed", summary.confirmed,
		"failed", summary.total-summary.confirmed,
	)
	return nil
}

func newHealthServer(cfg *config.Config, mono monolith.Monolith, log logger.LoggerInterface) *health.Server {
	srv := health.NewServer(cfg.Health.Port, version, log)
	services := mono.Services()

	srv.RegisterCheck("node", blockchainDI.GetNodeClient(services).Ping)

	if g, ok := executionDI.GetGuard(services).(interface{ Ping(context.Context) error }); ok {
		srv.RegisterCheck("guard", g.Ping)
	}
	if pg := executionDI.GetPostgres(services); pg != nil {
		srv.RegisterCheck("journal", pg.Ping)
	}
	return srv
}
