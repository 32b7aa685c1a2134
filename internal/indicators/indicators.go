// Package indicators computes pure technical indicators over a candle
// series. These feed the LLM prompt (internal/llm) so the reasoning
// step receives pre-digested signal instead of raw OHLCV arrays.
package indicators

import (
	"math"

	"futures-llm-agent/internal/model"
)

// Compute derives the full Indicators set from a candle series. Candles
// must be ordered oldest-first. Series shorter than an indicator's lookback
// (the longest is 34 bars, for the MACD signal line: EMA26 plus a 9-period
// EMA of MACD) produce zero-valued fields for indicators that
// cannot yet be computed rather than an error — a cold-start snapshot is
// still usable, just less informative.
func Compute(candles []model.Candle) model.Indicators {
	closes := closesOf(candles)

	sma20 := sma(closes, 20)
	ema12 := ema(closes, 12)
	ema26 := ema(closes, 26)
	macd := ema12 - ema26
	macdSignal := emaOfSeries(macdSeries(closes), 9)
	rsi14 := rsi(closes, 14)
	bbUp, bbDown := bollinger(closes, 20, 2.0)
	atr14 := atr(candles, 14)
	vol := volatility(closes, 20)
	trend := trendStrength(closes)

	return model.Indicators{
		SMA20:         sanitize(sma20),
		EMA12:         sanitize(ema12),
		EMA26:         sanitize(ema26),
		RSI14:         sanitize(rsi14),
		MACD:          sanitize(macd),
		MACDSignal:    sanitize(macdSignal),
		BollingerUp:   sanitize(bbUp),
		BollingerDown: sanitize(bbDown),
		ATR14:         sanitize(atr14),
		Volatility:    sanitize(vol),
		TrendStrength: sanitize(trend),
	}
}

func closesOf(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func sma(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}
	window := closes[len(closes)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period)
}

func ema(closes []float64, period int) float64 {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(closes)-period+1)
	seed := sma(closes[:period], period)
	out = append(out, seed)
	prev := seed
	for _, v := range closes[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}

func emaOfSeries(series []float64, period int) float64 {
	return ema(series, period)
}

// macdSeries computes the rolling EMA12-EMA26 difference; needs both EMAs
// computed at every point, so it recomputes over a trailing window rather
// than reusing the single-value ema() helper.
func macdSeries(closes []float64) []float64 {
	if len(closes) < 26 {
		return nil
	}
	out := make([]float64, 0, len(closes)-25)
	for i := 26; i <= len(closes); i++ {
		window := closes[:i]
		out = append(out, ema(window, 12)-ema(window, 26))
	}
	return out
}

func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	window := closes[len(closes)-period-1:]
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		diff := window[i] - window[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	if gain+loss == 0 {
		return 50
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func bollinger(closes []float64, period int, stdDevs float64) (upper, lower float64) {
	if len(closes) < period {
		return 0, 0
	}
	window := closes[len(closes)-period:]
	mean := sma(closes, period)
	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(period)
	std := math.Sqrt(variance)
	return mean + stdDevs*std, mean - stdDevs*std
}

func atr(candles []model.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	window := trs[len(trs)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period)
}

// volatility is the annualizing-agnostic stddev of simple returns over
// period bars — a relative, unit-free risk signal for the prompt.
func volatility(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	window := closes[len(closes)-period-1:]
	returns := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// trendStrength is the slope of a linear regression over the closes,
// normalized by the mean price, so it is comparable across symbols.
func trendStrength(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	nf := float64(n)
	denom := nf*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	meanY := sumY / nf
	if meanY == 0 {
		return 0
	}
	return slope / meanY
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
