package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"futures-llm-agent/internal/model"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// RawRecommendation is the loosely-typed shape of one entry in the model's
// "recommendations" array, before the decision normalizer canonicalizes it.
// Numeric fields are left as any (a float64 or a string once decoded) so the normalizer can parse
// them defensively (thousands separators, strings instead of numbers, etc).
type RawRecommendation struct {
	Symbol          string `json:"symbol"`
	Action          string `json:"action"`
	Confidence      any    `json:"confidence"`
	Leverage        any    `json:"leverage"`
	OrderType       string `json:"order_type"`
	EntryPrice      any    `json:"entry_price"`
	UsdtAmount      any    `json:"usdt_amount"`
	ReducePercent   any    `json:"reduce_percent"`
	ReduceUsdt      any    `json:"reduce_usdt"`
	ClosePercent    any    `json:"close_percent"`
	StopLossPrice   any    `json:"stop_loss_price"`
	TakeProfitPrice any    `json:"take_profit_price"`
	Reason          string `json:"reason"`
	RiskReward      any    `json:"risk_reward"`
	CostBenefit     string `json:"cost_benefit"`
}

// ParsedResponse is the result of parsing one LLM response body.
type ParsedResponse struct {
	MarketOverview  string
	Recommendations []RawRecommendation
	Quality         model.AnalysisQuality
	Thinking        string
	RawContent      string
}

type responseEnvelope struct {
	MarketOverview  string              `json:"market_overview"`
	Recommendations []RawRecommendation `json:"recommendations"`
}

// ParseResponse parses raw chat-completion content into a ParsedResponse. It
// tolerates a fenced ```json block, a bare JSON object, and surrounding
// prose; when the structural fields are missing it returns a degraded
// ParsedResponse with Quality=partial, an empty Recommendations list, and the
// raw content preserved rather than returning an error — a malformed
// response must never abort the scheduler.
func ParseResponse(content string) ParsedResponse {
	thinking := extractThinking(content)
	candidate := stripToJSONObject(content)

	var env responseEnvelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil || (env.MarketOverview == "" && len(env.Recommendations) == 0) {
		return ParsedResponse{
			Quality:    model.QualityPartial,
			Thinking:   thinking,
			RawContent: content,
		}
	}

	return ParsedResponse{
		MarketOverview:  env.MarketOverview,
		Recommendations: env.Recommendations,
		Quality:         model.QualityFull,
		Thinking:        thinking,
		RawContent:      content,
	}
}

// stripToJSONObject reduces content to its best-guess JSON object: a fenced
// ```json block if present, otherwise the first {...} span, otherwise the
// trimmed content unchanged.
func stripToJSONObject(content string) string {
	trimmed := strings.TrimSpace(content)

	if strings.Contains(trimmed, "```") {
		if matches := fencedJSONPattern.FindStringSubmatch(trimmed); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}

	return trimmed
}
