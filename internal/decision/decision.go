// Package decision normalizes raw LLM recommendations into canonical
// Decision values the safety gate and order executor can act on.
package decision

import (
	"math"
	"strconv"
	"strings"

	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/llm"
	"futures-llm-agent/internal/model"
)

// actionAliases maps every accepted recommendation action string (spec.md
// §3 Action set A) to a model.Action. Anything not in this map normalizes
// to hold.
var actionAliases = map[string]model.Action{
	"long":          model.ActionOpenLong,
	"open_long":     model.ActionOpenLong,
	"add_to_long":   model.ActionOpenLong,
	"short":         model.ActionOpenShort,
	"open_short":    model.ActionOpenShort,
	"add_to_short":  model.ActionOpenShort,
	"reduce_long":   model.ActionClose,
	"reduce_short":  model.ActionClose,
	"close_long":    model.ActionClose,
	"close_short":   model.ActionClose,
	"close":         model.ActionClose,
	"adjust_tp_sl":  model.ActionAdjustSLTP,
	"cancel_tp_sl":  model.ActionCancelSLTP,
	"hold":          model.ActionHold,
}

// Normalizer turns RawRecommendations into Decisions using per-symbol
// configuration (stop-loss/take-profit percents, min confidence).
type Normalizer struct {
	settings *cfg.Settings
}

// New constructs a Normalizer bound to the running configuration.
func New(settings *cfg.Settings) *Normalizer {
	return &Normalizer{settings: settings}
}

// Normalize maps one raw recommendation against its matching snapshot into
// a canonical Decision. It does no symbol matching of its own: the caller
// picks the snapshot (the scheduler's matchSnapshot does the
// case-insensitive, suffix-tolerant match) and the Decision takes its
// symbol from snap.
func (n *Normalizer) Normalize(raw llm.RawRecommendation, snap model.MarketSnapshot, overview string) model.Decision {
	sc := n.settings.GetSymbolConfig(snap.Symbol)

	action := normalizeAction(raw.Action)
	confidence := parseFloatDefensive(raw.Confidence)
	leverage := int(parseFloatDefensive(raw.Leverage))
	if leverage <= 0 {
		leverage = sc.DefaultLeverage
	}

	last := snap.MarkPrice
	if last == 0 {
		last = snap.LastPrice
	}

	sl, tp := defaultStopLossTakeProfit(action, last, leverage, sc.StopLossPercent, sc.TakeProfitPercent)
	if v := parseFloatDefensive(raw.StopLossPrice); v > 0 {
		sl = v
	}
	if v := parseFloatDefensive(raw.TakeProfitPrice); v > 0 {
		tp = v
	}

	orderType := model.OrderTypeMarket
	entryPrice := parseFloatDefensive(raw.EntryPrice)
	if strings.EqualFold(raw.OrderType, "LIMIT") && entryPrice > 0 {
		orderType = model.OrderTypeLimit
	}

	reducePercent := parseFloatDefensive(raw.ReducePercent)
	if reducePercent == 0 {
		if cp := parseFloatDefensive(raw.ClosePercent); cp > 0 {
			reducePercent = cp
		} else if action == model.ActionClose {
			reducePercent = 100 // no percent specified: close the full position
		}
	}

	decision := model.Decision{
		Symbol:           snap.Symbol,
		Action:           action,
		Confidence:       confidence,
		OrderType:        orderType,
		EntryPrice:       entryPrice,
		PositionSizeUsdt: parseFloatDefensive(raw.UsdtAmount),
		ReducePercent:    reducePercent,
		Leverage:         leverage,
		StopLossPrice:    sl,
		TakeProfitPrice:  tp,
		Reasoning:        raw.Reason,
		FundingImpact:    assessFundingImpact(action, snap.FundingRate),
		AnalysisQuality:  model.QualityFull,
		DecidedAt:        snap.FetchedAt,
	}
	decision.RiskScore = riskScore(decision, snap, overview)

	return decision
}

// ShouldExecute gates whether the executor should act on this decision:
// action must not be hold, and confidence must meet the configured floor.
func (n *Normalizer) ShouldExecute(d model.Decision) bool {
	return d.Action != model.ActionHold && d.Confidence >= n.settings.MinConfidence
}

func normalizeAction(raw string) model.Action {
	key := strings.ToLower(strings.TrimSpace(raw))
	if action, ok := actionAliases[key]; ok {
		return action
	}
	return model.ActionHold
}

// defaultStopLossTakeProfit computes the fallback SL/TP when the LLM omits
// them (spec.md §4.D.3): the configured percent is scaled down by leverage
// so the price-distance risk stays roughly leverage-invariant.
func defaultStopLossTakeProfit(action model.Action, last float64, leverage int, slPercent, tpPercent float64) (sl, tp float64) {
	if last <= 0 || leverage <= 0 {
		return 0, 0
	}
	adjSL := slPercent / float64(leverage)
	adjTP := tpPercent / float64(leverage)

	switch action {
	case model.ActionOpenShort:
		return last * (1 + adjSL), last * (1 - adjTP)
	default:
		return last * (1 - adjSL), last * (1 + adjTP)
	}
}

// assessFundingImpact classifies the funding rate's effect on a directional
// position (spec.md §4.D.4). Magnitudes below 1 bp (0.0001) are neutral
// regardless of direction or sign.
func assessFundingImpact(action model.Action, rate float64) string {
	const neutralThreshold = 0.0001
	if math.Abs(rate) < neutralThreshold {
		return "neutral"
	}
	switch action {
	case model.ActionOpenLong:
		if rate > 0 {
			return "negative"
		}
		return "positive"
	case model.ActionOpenShort:
		if rate > 0 {
			return "positive"
		}
		return "negative"
	default:
		return "neutral"
	}
}

// riskScore computes the 0-10 composite risk score from spec.md §4.D.5:
// base 5, leverage contribution capped at 3, volatility bumps, funding
// magnitude bump, and a market-overview language bump, capped at 10.
func riskScore(d model.Decision, snap model.MarketSnapshot, overview string) float64 {
	score := 5.0
	score += math.Min(float64(d.Leverage)/10*3, 3)

	vol := snap.Indicators.Volatility
	switch {
	case vol > 0.80:
		score += 2
	case vol > 0.50:
		score += 1
	}

	if math.Abs(snap.FundingRate) > 0.001 {
		score += 1
	}

	if strings.Contains(strings.ToLower(overview), "high vol") || strings.Contains(strings.ToLower(overview), "high volatility") {
		score += 1.5
	}

	return math.Min(score, 10)
}

// parseFloatDefensive parses any numeric-ish LLM field: a float64,
// float32, int, int64, or string possibly carrying thousands separators. Non-finite
// or unparseable values resolve to 0 rather than propagating NaN/Inf into a
// Decision.
func parseFloatDefensive(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		return sanitizeFloat(val)
	case float32:
		return sanitizeFloat(float64(val))
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if cleaned == "" {
			return 0
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return sanitizeFloat(f)
	default:
		return 0
	}
}

func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
