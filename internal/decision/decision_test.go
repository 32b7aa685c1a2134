package decision

import (
	"testing"
	"time"

	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/llm"
	"futures-llm-agent/internal/model"

	"github.com/stretchr/testify/assert"
)

func testSettings() *cfg.Settings {
	return &cfg.Settings{
		DefaultLeverage:   5,
		StopLossPercent:   0.03,
		TakeProfitPercent: 0.06,
		MinConfidence:     60,
	}
}

func TestNormalize_UnknownActionBecomesHold(t *testing.T) {
	n := New(testSettings())
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "yolo_all_in"}, model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}, "")
	assert.Equal(t, model.ActionHold, d.Action)
}

func TestNormalize_KnownAliases(t *testing.T) {
	n := New(testSettings())
	cases := map[string]model.Action{
		"long":         model.ActionOpenLong,
		"add_to_long":  model.ActionOpenLong,
		"short":        model.ActionOpenShort,
		"reduce_long":  model.ActionClose,
		"close_short":  model.ActionClose,
		"adjust_tp_sl": model.ActionAdjustSLTP,
		"cancel_tp_sl": model.ActionCancelSLTP,
		"hold":         model.ActionHold,
	}
	for raw, want := range cases {
		d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: raw}, model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}, "")
		assert.Equal(t, want, d.Action, raw)
	}
}

func TestNormalize_DefaultStopLossTakeProfitLong(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", Leverage: 5.0}, snap, "")

	assert.Less(t, d.StopLossPrice, 100.0)
	assert.Greater(t, d.TakeProfitPrice, 100.0)
}

func TestNormalize_DefaultStopLossTakeProfitShort(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "short", Leverage: 5.0}, snap, "")

	assert.Greater(t, d.StopLossPrice, 100.0)
	assert.Less(t, d.TakeProfitPrice, 100.0)
}

func TestNormalize_ExplicitStopLossOverridesDefault(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", StopLossPrice: 90.0}, snap, "")

	assert.Equal(t, 90.0, d.StopLossPrice)
}

func TestNormalize_ParsesThousandsSeparatedStrings(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", UsdtAmount: "1,000.50"}, snap, "")

	assert.Equal(t, 1000.50, d.PositionSizeUsdt)
}

func TestNormalize_NonFiniteStringsBecomeZero(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", UsdtAmount: "not-a-number"}, snap, "")

	assert.Equal(t, 0.0, d.PositionSizeUsdt)
}

func TestAssessFundingImpact(t *testing.T) {
	assert.Equal(t, "negative", assessFundingImpact(model.ActionOpenLong, 0.0005))
	assert.Equal(t, "positive", assessFundingImpact(model.ActionOpenLong, -0.0005))
	assert.Equal(t, "neutral", assessFundingImpact(model.ActionOpenLong, 0.00001))
	assert.Equal(t, "positive", assessFundingImpact(model.ActionOpenShort, 0.0005))
	assert.Equal(t, "negative", assessFundingImpact(model.ActionOpenShort, -0.0005))
}

func TestRiskScore_CapsAtTen(t *testing.T) {
	d := model.Decision{Leverage: 125}
	snap := model.MarketSnapshot{Indicators: model.Indicators{Volatility: 0.9}, FundingRate: 0.01}
	score := riskScore(d, snap, "expect high volatility ahead")
	assert.LessOrEqual(t, score, 10.0)
}

func TestShouldExecute_GatesOnConfidenceAndAction(t *testing.T) {
	n := New(testSettings())

	assert.True(t, n.ShouldExecute(model.Decision{Action: model.ActionOpenLong, Confidence: 75}))
	assert.False(t, n.ShouldExecute(model.Decision{Action: model.ActionOpenLong, Confidence: 40}))
	assert.False(t, n.ShouldExecute(model.Decision{Action: model.ActionHold, Confidence: 95}))
}

func TestNormalize_LimitOrderRequiresEntryPriceAndType(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}

	market := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", OrderType: "LIMIT"}, snap, "")
	assert.Equal(t, model.OrderTypeMarket, market.OrderType, "LIMIT without entry_price falls back to MARKET")

	limit := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "long", OrderType: "LIMIT", EntryPrice: 99.5}, snap, "")
	assert.Equal(t, model.OrderTypeLimit, limit.OrderType)
	assert.Equal(t, 99.5, limit.EntryPrice)
}

func TestNormalize_CloseDefaultsToFullReduce(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "close_long"}, snap, "")
	assert.Equal(t, 100.0, d.ReducePercent)
}

func TestNormalize_CloseRespectsExplicitReducePercent(t *testing.T) {
	n := New(testSettings())
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "reduce_long", ReducePercent: 25.0}, snap, "")
	assert.Equal(t, 25.0, d.ReducePercent)
}

func TestNormalize_DecidedAtMatchesSnapshot(t *testing.T) {
	n := New(testSettings())
	now := time.Now()
	snap := model.MarketSnapshot{Symbol: "BTCUSDT", MarkPrice: 100, FetchedAt: now}
	d := n.Normalize(llm.RawRecommendation{Symbol: "BTCUSDT", Action: "hold"}, snap, "")
	assert.Equal(t, now, d.DecidedAt)
}
