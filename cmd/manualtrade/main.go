// Command manualtrade is a thin driver over the same Safety Gate and
// Order Executor the scheduler uses, for placing one ad-hoc trade
// without waiting on the LLM reasoning loop. Grounded on
// original_source/manual_trade.py (see SPEC_FULL.md's supplemented
// features): it builds exactly one llm.RawRecommendation from flags and
// runs it through the normalizer, gate, and executor unchanged. The gate
// is given a 24h price change of 0, so its price-anomaly check always
// passes here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/common"
	"futures-llm-agent/internal/decision"
	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/executor"
	"futures-llm-agent/internal/llm"
	"futures-llm-agent/internal/model"
	"futures-llm-agent/internal/safety"
	"futures-llm-agent/internal/snapshot"

	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("manualtrade", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file (sets CONFIG_FILE)")
	symbol := fs.String("symbol", "", "trading symbol, e.g. BTCUSDT (required)")
	action := fs.String("action", "", "long|short|add_to_long|add_to_short|reduce_long|reduce_short|close_long|close_short|hold (required)")
	usdtAmount := fs.Float64("usdt", 0, "position size in USDT, required for open/add actions")
	leverage := fs.Int("leverage", 0, "leverage; 0 uses the configured default")
	reducePercent := fs.Float64("reduce-percent", 0, "percent of the open position to reduce/close, (0,100]")
	stopLoss := fs.Float64("sl", 0, "stop-loss price; 0 derives it from configured stopLossPercent")
	takeProfit := fs.Float64("tp", 0, "take-profit price; 0 derives it from configured takeProfitPercent")
	entryPrice := fs.Float64("entry-price", 0, "limit entry price; 0 submits a MARKET order")
	execute := fs.Bool("execute", false, "submit the real order; omit to simulate it")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *symbol == "" || *action == "" {
		fmt.Fprintln(os.Stderr, "usage: manualtrade --symbol SYM --action ACTION [--usdt N] [--leverage N] [--sl P] [--tp P] [--reduce-percent N] [--entry-price P] [--execute]")
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
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}
	if !*execute {
		settings.DryRun = true
	}

	exchangeClient := usdm.New(settings.ExchangeAPIKey, settings.ExchangeAPISecret, settings.ExchangeBaseURL, settings.RESTTimeout, nil)

	var orderSink executor.Exchange = exchangeClient
	if settings.DryRun {
		orderSink = executor.NewDryRunExchange(exchangeClient)
	}

	ctx := context.Background()
	assembler := snapshot.New(exchangeClient, 1, settings.SnapshotDeadline)
	snapshots := assembler.AssembleAll(ctx, []string{*symbol})
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stderr, "failed to assemble a market snapshot for", *symbol)
		return 1
	}
	snap := snapshots[0]
	if snap.Partial {
		log.Warn().Strs("missing", snap.MissingFields).Msg("snapshot is partial, proceeding with what was fetched")
	}

	orderType := "MARKET"
	var rawEntry any
	if *entryPrice > 0 {
		orderType = "LIMIT"
		rawEntry = *entryPrice
	}

	raw := llm.RawRecommendation{
		Symbol:          *symbol,
		Action:          *action,
		Confidence:      100.0,
		Leverage:        float64(*leverage),
		OrderType:       orderType,
		EntryPrice:      rawEntry,
		UsdtAmount:      *usdtAmount,
		ReducePercent:   *reducePercent,
		StopLossPrice:   *stopLoss,
		TakeProfitPrice: *takeProfit,
		Reason:          "manual trade CLI",
	}

	normalizer := decision.New(&settings)
	d := normalizer.Normalize(raw, snap, "")
	if !normalizer.ShouldExecute(d) {
		fmt.Printf("decision normalized to hold for %s, nothing submitted\n", *symbol)
		return 0
	}

	gate := safety.New(&settings)
	if r := gate.Check(d, snap, 0); !r.Passed {
		fmt.Printf("rejected by safety gate: %s\n", r.Reason)
		return 1
	}

	exec := executor.New(orderSink, &settings)
	rec := exec.Execute(ctx, d, snap)

	if rec.State == model.StateFailed {
		fmt.Printf("execution failed: %s\n", rec.FailureReason)
		return 1
	}
	fmt.Printf("execution reached state %s: entry=%s sl=%s tp=%s filledQty=%.6f filledPrice=%.4f\n",
		rec.State, rec.EntryOrderID, rec.SLOrderID, rec.TPOrderID, rec.FilledQty, rec.FilledPrice)
	return 0
}
