// Command dashboard runs the same agent loop as `agent run` with the
// read-only session dashboard attached on system.dashboardPort. It
// exists because the dashboard has nothing to show without a live
// scheduler feeding its Session — there is no cross-process channel
// for a viewer to attach to an already-running agent, so this binary
// is the "agent, plus a dashboard" entrypoint rather than a standalone
// viewer. `dashboard run --config PATH [--execute]`.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"futures-llm-agent/internal/audit"
	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/common"
	"futures-llm-agent/internal/dashboard"
	"futures-llm-agent/internal/decision"
	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/executor"
	"futures-llm-agent/internal/llm"
	"futures-llm-agent/internal/metrics"
	"futures-llm-agent/internal/reconciler"
	"futures-llm-agent/internal/safety"
	"futures-llm-agent/internal/scheduler"
	"futures-llm-agent/internal/snapshot"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: dashboard run --config PATH [--execute]")
		return 1
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file (sets CONFIG_FILE)")
	execute := fs.Bool("execute", false, "submit real orders; omit to force a simulated (dry-run) session")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	if *configPath != "" {
		if err := os.Setenv(common.EnvConfigFile, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set %s: %v\n", common.EnvConfigFile, err)
			return 1
		}
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Error().Err(err).Msg("config load failed")
		return 1
	}
	configureLogging(settings.LogLevel)

	if !*execute {
		settings.DryRun = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	go serveMetrics(ctx, settings.MetricsPort)

	symbolCache, err := usdm.NewSymbolCache(filepath.Join(settings.AuditDir, common.DefaultCacheDirName))
	if err != nil {
		log.Warn().Err(err).Msg("symbol cache unavailable, continuing without persistence")
	} else {
		defer symbolCache.Close()
	}

	exchangeClient := usdm.New(settings.ExchangeAPIKey, settings.ExchangeAPISecret, settings.ExchangeBaseURL, settings.RESTTimeout, symbolCache)

	var orderSink executor.Exchange = exchangeClient
	var sweepSink reconciler.Exchange = exchangeClient
	if settings.DryRun {
		dryRun := executor.NewDryRunExchange(exchangeClient)
		orderSink = dryRun
		sweepSink = dryRun
	}

	assembler := snapshot.New(exchangeClient, settings.SnapshotConcurrency, settings.SnapshotDeadline)

	llmClient := llm.New(llm.Config{
		APIKey:      settings.LLMAPIKey,
		BaseURL:     settings.LLMBaseURL,
		Model:       settings.LLMModel,
		Timeout:     common.DefaultLLMTimeoutSec * time.Second,
		Temperature: common.DefaultLLMTemperature,
		MaxTokens:   common.DefaultLLMMaxTokens,
	})

	normalizer := decision.New(&settings)
	gate := safety.New(&settings)
	orderExecutor := executor.New(orderSink, &settings)
	recon := reconciler.New(sweepSink)

	auditLogger, err := audit.New(settings.AuditDir)
	if err != nil {
		log.Error().Err(err).Msg("audit logger initialization failed")
		return 1
	}

	sched := scheduler.New(&settings, assembler, llmClient, normalizer, gate, orderExecutor, recon, auditLogger, mw)

	dash := dashboard.New(sched.Session(), settings.DashboardPort)
	if err := dash.Start(); err != nil {
		log.Error().Err(err).Msg("dashboard failed to start")
		return 1
	}
	defer dash.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var interrupted atomic.Bool
	go func() {
		<-sigCh
		interrupted.Store(true)
		log.Info().Msg("shutdown signal received, finishing in-flight cycle")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler exited with error")
		return 1
	}

	if interrupted.Load() {
		return 130
	}
	return 0
}

func configureLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
