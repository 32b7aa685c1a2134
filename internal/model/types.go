// Package model holds the domain types shared across the agent's
// pipeline: exchange symbol metadata, market snapshots, LLM decisions,
// and the running session/order records derived from them.
package model

import "time"

// Symbol describes exchange trading-rule metadata for a perpetual
// contract, needed to round order size/price to the exchange's grid and
// to reject orders that fall below its minimum notional.
type Symbol struct {
	Name           string  // e.g. "BTCUSDT"
	TickSize       float64 // minimum price increment
	StepSize       float64 // minimum quantity increment
	MinQty         float64
	MinNotionalUsdt float64
	MaxLeverage    int
	PricePrecision int
	QtyPrecision   int
}

// Candle is one OHLCV bar for a given interval.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// OrderBookLevel is one price/quantity rung of the order book.
type OrderBookLevel struct {
	Price float64
	Qty   float64
}

// Position is the account's current open exposure on a symbol, or the
// zero value when flat.
type Position struct {
	Symbol        string
	Side          string // "long", "short", or "" if flat
	Quantity      float64
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      int
	LiquidationPrice float64
}

// MarketSnapshot is the complete, point-in-time market picture assembled
// for one symbol before a decision is requested from the LLM.
type MarketSnapshot struct {
	Symbol           string
	FetchedAt        time.Time
	MarkPrice        float64
	LastPrice        float64
	FundingRate      float64
	NextFundingTime  time.Time
	OpenInterest     float64
	Candles1m        []Candle
	Candles5m        []Candle
	Candles1h        []Candle
	OrderBookBids    []OrderBookLevel
	OrderBookAsks    []OrderBookLevel
	AccountBalance   float64
	Position         Position
	Indicators       Indicators // 1m-derived indicators, kept for backward-compatible single-timeframe callers
	Timeframes       map[string]Indicators // per-timeframe indicator bundle (spec.md §3 perSymbol.timeframes), e.g. "1m"/"5m"/"1h"
	Partial          bool     // true if one or more components failed to fetch
	MissingFields    []string // names of components that failed
}

// Indicators are the pure-function technical indicators computed over a
// snapshot's candle series; the LLM prompt includes these so the model
// does not have to do arithmetic over raw candles itself.
type Indicators struct {
	SMA20         float64
	EMA12         float64
	EMA26         float64
	RSI14         float64
	MACD          float64
	MACDSignal    float64
	BollingerUp   float64
	BollingerDown float64
	ATR14         float64
	Volatility    float64
	TrendStrength float64
}

// Action is the normalized trading instruction a Decision resolves to.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionClose      Action = "close"
	ActionHold       Action = "hold"
	ActionAdjustSLTP Action = "adjust_sl_tp"
	ActionCancelSLTP Action = "cancel_sl_tp"
)

// AnalysisQuality flags whether a Decision came from a fully-parsed LLM
// response or was salvaged from a partial/malformed one.
type AnalysisQuality string

const (
	QualityFull    AnalysisQuality = "full"
	QualityPartial AnalysisQuality = "partial"
)

// OrderType is the entry order type a Decision resolves to.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Decision is the normalized output of the LLM reasoning step, ready for
// the safety gate and order executor.
type Decision struct {
	Symbol           string
	Action           Action
	Confidence       float64 // 0-100
	OrderType        OrderType
	EntryPrice       float64 // only meaningful when OrderType is LIMIT
	PositionSizeUsdt float64
	ReducePercent    float64 // (0,100]; only meaningful for Action == ActionClose
	Leverage         int
	StopLossPrice    float64
	TakeProfitPrice  float64
	Reasoning        string
	Thinking         string
	FundingImpact    string
	RiskScore        float64
	AnalysisQuality  AnalysisQuality
	RawResponse      string
	DecidedAt        time.Time
}

// ExecutionState is one stage of the order executor's state machine.
type ExecutionState string

const (
	StateReceived            ExecutionState = "received"
	StateLeverageSet         ExecutionState = "leverage_set"
	StateSized               ExecutionState = "sized"
	StateEntrySubmitted      ExecutionState = "entry_submitted"
	StateEntryResolved       ExecutionState = "entry_resolved"
	StateProtectiveSubmitted ExecutionState = "protective_submitted"
	StateDone                ExecutionState = "done"
	StateFailed              ExecutionState = "failed"
)

// ExecutionRecord tracks one decision's progress through the executor's
// state machine, for audit logging and the dashboard.
type ExecutionRecord struct {
	Symbol        string
	Decision      Decision
	State         ExecutionState
	EntryOrderID  string
	SLOrderID     string
	TPOrderID     string
	FilledQty     float64
	FilledPrice   float64
	FailureReason string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// SessionStats are the running counters surfaced to the dashboard and
// logged at shutdown.
type SessionStats struct {
	StartedAt          time.Time
	CyclesCompleted     int
	DecisionsExecuted   int
	DecisionsHeld       int
	DecisionsRejected   int
	OrdersFilled        int
	OrdersFailed        int
	LastCycleAt         time.Time
	LastCycleDuration   time.Duration
}
