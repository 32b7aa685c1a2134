// Package scheduler runs the periodic cycle that drives every other
// component: assemble snapshots, ask the LLM for recommendations,
// normalize and gate them, execute what passes, then sweep orphaned
// protective orders. Cycles run strictly sequentially — there is never
// more than one in flight — and the loop sleeps the configured interval
// between them.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"futures-llm-agent/internal/audit"
	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/decision"
	"futures-llm-agent/internal/executor"
	"futures-llm-agent/internal/llm"
	"futures-llm-agent/internal/metrics"
	"futures-llm-agent/internal/model"
	"futures-llm-agent/internal/reconciler"
	"futures-llm-agent/internal/safety"
	"futures-llm-agent/internal/snapshot"

	"github.com/rs/zerolog/log"
)

const component = "scheduler"

// Analyzer is the narrow view of the llm.Client the scheduler needs.
// *llm.Client satisfies it directly; tests supply a fake so a cycle can
// run without a live chat-completions endpoint.
type Analyzer interface {
	Prompts() *llm.PromptBuilder
	Analyze(ctx context.Context, snapshots []model.MarketSnapshot, session llm.SessionContext) (llm.ParsedResponse, error)
}

// Scheduler wires the snapshot assembler, LLM client, decision
// normalizer, safety gate, order executor, reconciler, and audit logger
// into the recurring cycle. It owns no exchange state directly — every
// dependency is handed in already constructed, so this package stays
// agnostic of transport and credentials.
type Scheduler struct {
	settings    *cfg.Settings
	assembler   *snapshot.Assembler
	llmClient   Analyzer
	normalizer  *decision.Normalizer
	gate        *safety.Gate
	executor    *executor.Executor
	reconciler  *reconciler.Reconciler
	auditLogger *audit.Logger
	metrics     *metrics.MetricsWrapper

	session *Session
}

// New constructs a Scheduler from its fully-assembled dependencies.
func New(
	settings *cfg.Settings,
	assembler *snapshot.Assembler,
	llmClient Analyzer,
	normalizer *decision.Normalizer,
	gate *safety.Gate,
	exec *executor.Executor,
	rec *reconciler.Reconciler,
	auditLogger *audit.Logger,
	metricsWrapper *metrics.MetricsWrapper,
) *Scheduler {
	return &Scheduler{
		settings:    settings,
		assembler:   assembler,
		llmClient:   llmClient,
		normalizer:  normalizer,
		gate:        gate,
		executor:    exec,
		reconciler:  rec,
		auditLogger: auditLogger,
		metrics:     metricsWrapper,
		session:     NewSession(time.Now()),
	}
}

// Session returns the running Session the dashboard reads from.
func (s *Scheduler) Session() *Session {
	return s.session
}

// Run drives the loop until ctx is cancelled or maxRuntime elapses. A
// cancellation is only honored between cycles or during the interval
// sleep — an in-flight cycle always runs to completion first.
func (s *Scheduler) Run(ctx context.Context) error {
	startedAt := s.session.Stats().StartedAt
	callCount := 0

	interval := s.settings.AnalysisInterval
	if interval <= 0 {
		interval = 900 * time.Second
	}

	for {
		if s.settings.MaxRuntime > 0 && time.Since(startedAt) >= s.settings.MaxRuntime {
			log.Info().Str("component", component).Msg("max runtime reached, stopping")
			return nil
		}

		callCount++
		s.runCycle(context.WithoutCancel(ctx), callCount)

		select {
		case <-ctx.Done():
			log.Info().Str("component", component).Msg("shutdown signal received, exiting after completed cycle")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, callCount int) {
	cycleStart := time.Now()
	log.Info().Str("component", component).Int("call", callCount).Msg("cycle starting")

	snapStart := time.Now()
	snapshots := s.assembler.AssembleAll(ctx, s.settings.Symbols)
	s.metrics.SnapshotLatency().Observe(time.Since(snapStart).Seconds())

	sessionCtx := llm.SessionContext{
		ElapsedMinutes: time.Since(s.session.Stats().StartedAt).Minutes(),
		CallCount:      callCount,
	}
	prompts := s.llmClient.Prompts()
	s.auditLogger.LogInput(callCount, prompts.SystemPrompt(), prompts.UserPrompt(snapshots, sessionCtx))

	llmStart := time.Now()
	parsed, err := s.llmClient.Analyze(ctx, snapshots, sessionCtx)
	llmElapsed := time.Since(llmStart)
	s.metrics.LLMLatency().Observe(llmElapsed.Seconds())

	if err != nil {
		log.Error().Str("component", component).Err(err).Msg("llm analysis failed, skipping decisions this cycle")
		s.metrics.ErrorsTotalInc()
		s.auditLogger.LogAlarm(fmt.Sprintf("llm analysis failed: %v", err))
		s.sweepOrphans(ctx)
		s.finishCycle(snapshots, nil, nil, "", cycleStart, 0, 0, 0, 0, 0)
		return
	}

	s.auditLogger.LogOutput(callCount, parsed.RawContent, parsed.Quality, len(parsed.Recommendations), llmElapsed)
	if parsed.Quality == model.QualityPartial {
		s.metrics.AnalysisDegradedInc()
	}

	var decisions []model.Decision
	var executions []model.ExecutionRecord
	var executed, held, rejected, filled, failed int
	var summary []string

	for _, raw := range parsed.Recommendations {
		snap, ok := matchSnapshot(snapshots, raw.Symbol)
		if !ok {
			continue
		}

		d := s.normalizer.Normalize(raw, snap, parsed.MarketOverview)
		decisions = append(decisions, d)

		if !s.normalizer.ShouldExecute(d) {
			held++
			summary = append(summary, fmt.Sprintf("%s: hold", d.Symbol))
			continue
		}

		change24h := priceChange24hPercent(snap)
		if r := s.gate.Check(d, snap, change24h); !r.Passed {
			rejected++
			s.metrics.DecisionsRejectedInc()
			summary = append(summary, fmt.Sprintf("%s: %s rejected (%s)", d.Symbol, d.Action, r.Reason))
			continue
		}

		execStart := time.Now()
		rec := s.executor.Execute(ctx, d, snap)
		s.metrics.OrderExecutionDuration().Observe(time.Since(execStart).Seconds())
		s.auditLogger.LogExecution(rec)
		executions = append(executions, rec)

		switch rec.State {
		case model.StateDone:
			executed++
			filled++
			s.metrics.DecisionsExecutedInc()
			s.metrics.OrdersFilledInc()
			summary = append(summary, fmt.Sprintf("%s: %s executed", d.Symbol, d.Action))
		case model.StateFailed:
			failed++
			s.metrics.OrdersFailedInc()
			s.metrics.ErrorsTotalInc()
			s.auditLogger.LogAlarm(fmt.Sprintf("%s %s failed: %s", rec.Symbol, d.Action, rec.FailureReason))
			summary = append(summary, fmt.Sprintf("%s: %s failed (%s)", d.Symbol, d.Action, rec.FailureReason))
		default:
			executed++
			summary = append(summary, fmt.Sprintf("%s: %s reached %s", d.Symbol, d.Action, rec.State))
		}
	}

	s.sweepOrphans(ctx)

	s.auditLogger.LogThinking(s.session.Stats(), parsed.MarketOverview, parsed.Thinking, strings.Join(summary, "; "))
	s.finishCycle(snapshots, decisions, executions, parsed.MarketOverview, cycleStart, executed, held, rejected, filled, failed)
}

func (s *Scheduler) sweepOrphans(ctx context.Context) {
	cancelled, err := s.reconciler.Sweep(ctx, s.settings.Symbols)
	if err != nil {
		log.Warn().Str("component", component).Err(err).Msg("reconciliation sweep failed")
		s.metrics.ErrorsTotalInc()
		return
	}
	for range cancelled {
		s.metrics.OrphanOrdersCancelledInc()
	}
}

func (s *Scheduler) finishCycle(snapshots []model.MarketSnapshot, decisions []model.Decision, executions []model.ExecutionRecord, overview string, cycleStart time.Time, executed, held, rejected, filled, failed int) {
	cycleDuration := time.Since(cycleStart)
	s.session.recordCycleEnd(snapshots, decisions, executions, overview, cycleDuration, executed, held, rejected, filled, failed)

	s.metrics.CyclesTotal().Inc()
	s.metrics.CycleDuration().Observe(cycleDuration.Seconds())

	positions := make(map[string]float64, len(snapshots))
	for _, snap := range snapshots {
		positions[snap.Symbol] = snap.Position.Quantity
	}
	s.metrics.UpdatePositions(positions)

	stats := s.session.Stats()
	s.auditLogger.LogCycle(stats)

	log.Info().Str("component", component).Int("cycle", stats.CyclesCompleted).
		Int("executed", executed).Int("held", held).Int("rejected", rejected).
		Dur("duration", cycleDuration).Msg("cycle complete")
}

// matchSnapshot finds the snapshot a recommendation's symbol refers to.
// Matching is case-insensitive and tolerates a recommendation symbol
// missing the quote-asset suffix the configured symbol carries (e.g. the
// model says "BTC" for a configured "BTCUSDT").
func matchSnapshot(snapshots []model.MarketSnapshot, rawSymbol string) (model.MarketSnapshot, bool) {
	want := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if want == "" {
		return model.MarketSnapshot{}, false
	}
	for _, snap := range snapshots {
		have := strings.ToUpper(snap.Symbol)
		if have == want || strings.HasPrefix(have, want) {
			return snap, true
		}
	}
	return model.MarketSnapshot{}, false
}

// priceChange24hPercent derives the safety gate's anomaly-check input from
// the hourly candle series, since a snapshot carries no dedicated 24h
// field. With fewer than 24 hourly candles available it uses whatever
// history exists; with fewer than two candles it returns 0 (neutral),
// letting the gate's other checks still run.
func priceChange24hPercent(snap model.MarketSnapshot) float64 {
	candles := snap.Candles1h
	if len(candles) < 2 {
		return 0
	}
	start := 0
	if len(candles) > 24 {
		start = len(candles) - 24
	}
	first := candles[start].Close
	last := candles[len(candles)-1].Close
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}
