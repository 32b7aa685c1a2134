// Package llm builds the reasoning prompt from a market snapshot, calls the
// configured chat-completions endpoint, and parses its response back into a
// list of raw recommendations for the decision normalizer.
package llm

import (
	"fmt"
	"strings"
	"time"

	"futures-llm-agent/internal/model"
)

const systemPromptTemplate = `You are a disciplined perpetual-futures trading analyst. You are given a
market snapshot for one or more symbols and must respond with STRICT JSON
matching this schema:

{
  "market_overview": "short free-text summary of overall conditions",
  "recommendations": [
    {
      "symbol": "BTCUSDT",
      "action": "long | short | add_to_long | add_to_short | reduce_long | reduce_short | close_long | close_short | adjust_tp_sl | cancel_tp_sl | hold",
      "confidence": 0-100,
      "leverage": 1-125,
      "order_type": "MARKET | LIMIT",
      "entry_price": optional, required only when order_type is LIMIT,
      "usdt_amount": required for long/short/add_to_*,
      "reduce_percent": optional, used for reduce_*/close_* in (0,100],
      "stop_loss_price": optional,
      "take_profit_price": optional,
      "reason": "short rationale",
      "risk_reward": optional numeric ratio,
      "cost_benefit": optional free text
    }
  ]
}

Rules you must follow when proposing a recommendation:
- Only propose actions from the closed set above; anything else is treated as hold.
- A long's stop-loss must sit below the current price and its take-profit above it; the reverse for a short.
- reduce_*/close_* actions never include usdt_amount; they reduce an existing position only.
- Do not wrap the JSON in commentary beyond the object itself. A fenced ` + "```json" + ` block is acceptable.
- Respond only for symbols present in the snapshot.

Think step by step before answering, but keep any visible reasoning short
and clearly separated from the JSON object, e.g. under a line starting with
"reasoning:" followed by the JSON on its own block.`

// timeframeOrder fixes the rendering order of the multi-timeframe
// indicator bundle (spec.md §3 perSymbol.timeframes) so the prompt is
// stable across runs regardless of map iteration order.
var timeframeOrder = []string{"1m", "5m", "1h"}

// PromptBuilder assembles system/user prompt pairs from a market snapshot.
type PromptBuilder struct{}

// NewPromptBuilder constructs a PromptBuilder. It carries no state; the
// signature matches the rest of the pipeline's constructor style.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// SystemPrompt returns the stable system prompt describing the agent's role,
// the accepted JSON schema, and the directional stop/limit constraints.
func (b *PromptBuilder) SystemPrompt() string {
	return systemPromptTemplate
}

// SessionContext carries caller-injected context that belongs in the user
// prompt but isn't part of any one snapshot: how long the session has been
// running and how many reasoning calls have already been made.
type SessionContext struct {
	ElapsedMinutes float64
	CallCount      int
}

// UserPrompt renders the per-cycle prompt from one or more snapshots plus
// session context. Snapshots marked Partial are annotated so the model knows
// some fields are missing rather than legitimately zero.
func (b *PromptBuilder) UserPrompt(snapshots []model.MarketSnapshot, session SessionContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Current UTC time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Session: elapsed=%.1fm call_count=%d\n\n", session.ElapsedMinutes, session.CallCount)

	for _, snap := range snapshots {
		b.writeSnapshot(&sb, snap)
	}

	return sb.String()
}

func (b *PromptBuilder) writeSnapshot(sb *strings.Builder, snap model.MarketSnapshot) {
	fmt.Fprintf(sb, "## %s\n", snap.Symbol)
	if snap.Partial {
		fmt.Fprintf(sb, "(partial snapshot — missing: %s)\n", strings.Join(snap.MissingFields, ", "))
	}
	fmt.Fprintf(sb, "mark_price=%.6f last_price=%.6f\n", snap.MarkPrice, snap.LastPrice)
	fmt.Fprintf(sb, "funding_rate=%.6f next_funding=%s open_interest=%.2f\n",
		snap.FundingRate, snap.NextFundingTime.UTC().Format(time.RFC3339), snap.OpenInterest)
	fmt.Fprintf(sb, "account_balance=%.2f\n", snap.AccountBalance)

	if snap.Position.Quantity != 0 {
		fmt.Fprintf(sb, "position: side=%s qty=%.6f entry=%.6f unrealized_pnl=%.2f leverage=%d liq_price=%.6f\n",
			snap.Position.Side, snap.Position.Quantity, snap.Position.EntryPrice,
			snap.Position.UnrealizedPnL, snap.Position.Leverage, snap.Position.LiquidationPrice)
	} else {
		fmt.Fprintf(sb, "position: flat\n")
	}

	for _, tf := range timeframeOrder {
		ind, ok := snap.Timeframes[tf]
		if !ok {
			continue
		}
		fmt.Fprintf(sb, "indicators[%s]: sma20=%.4f ema12=%.4f ema26=%.4f rsi14=%.2f macd=%.4f macd_signal=%.4f boll_up=%.4f boll_down=%.4f atr14=%.4f volatility=%.4f trend_strength=%.4f\n",
			tf, ind.SMA20, ind.EMA12, ind.EMA26, ind.RSI14,
			ind.MACD, ind.MACDSignal, ind.BollingerUp, ind.BollingerDown,
			ind.ATR14, ind.Volatility, ind.TrendStrength)
	}

	if bid, ask, ok := topOfBook(snap); ok {
		spreadPct := (ask - bid) / bid * 100
		fmt.Fprintf(sb, "book: bid=%.6f ask=%.6f spread_pct=%.4f\n", bid, ask, spreadPct)
	}

	fmt.Fprintf(sb, "candles_1m=%d candles_5m=%d candles_1h=%d\n\n", len(snap.Candles1m), len(snap.Candles5m), len(snap.Candles1h))
}

func topOfBook(snap model.MarketSnapshot) (bid, ask float64, ok bool) {
	if len(snap.OrderBookBids) == 0 || len(snap.OrderBookAsks) == 0 {
		return 0, 0, false
	}
	return snap.OrderBookBids[0].Price, snap.OrderBookAsks[0].Price, true
}
