// Package snapshot assembles a MarketSnapshot per symbol: it assembles
// symbols concurrently (each symbol's exchange calls run in sequence),
// bounds the number of symbols in flight at once with a semaphore, and enforces a
// single deadline across the whole batch so one unresponsive symbol
// cannot stall the scheduler indefinitely.
package snapshot

import (
	"context"
	"sync"
	"time"

	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/indicators"
	"futures-llm-agent/internal/model"

	"github.com/rs/zerolog/log"
)

// Exchange is the narrow view of the exchange adapter the assembler
// needs, so this package does not import internal/exchange/usdm directly
// and tests can supply a hand-written fake.
type Exchange interface {
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	GetFundingRate(ctx context.Context, symbol string) (rate float64, nextFundingTime time.Time, err error)
	GetOpenInterest(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol string, interval Interval, limit int) ([]model.Candle, error)
	GetDepth(ctx context.Context, symbol string, depth int) (bids, asks []model.OrderBookLevel, err error)
	GetAccountBalance(ctx context.Context) (float64, error)
	GetPosition(ctx context.Context, symbol string) (model.Position, error)
}

// Interval is an alias of usdm.Interval; kept as a package-local name so
// callers of this package don't need to spell out the exchange package.
type Interval = usdm.Interval

const (
	Interval1m = usdm.Interval1m
	Interval5m = usdm.Interval5m
	Interval1h = usdm.Interval1h
)

// Assembler builds MarketSnapshots for a set of symbols with bounded
// concurrency and a global deadline.
type Assembler struct {
	exchange    Exchange
	concurrency int
	deadline    time.Duration
}

// New creates an Assembler. concurrency bounds how many symbols are
// fetched in parallel; deadline bounds the whole batch, not any single
// symbol.
func New(exchange Exchange, concurrency int, deadline time.Duration) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Assembler{exchange: exchange, concurrency: concurrency, deadline: deadline}
}

// AssembleAll builds one snapshot per symbol, bounding in-flight fetches
// to a.concurrency and the whole call to a.deadline. Symbols whose fetch
// fails or times out still produce a snapshot, marked Partial with
// MissingFields populated, rather than dropping the symbol from the
// cycle entirely — a partial snapshot is still usable.
func (a *Assembler) AssembleAll(ctx context.Context, symbols []string) []model.MarketSnapshot {
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	sem := make(chan struct{}, a.concurrency)
	results := make([]model.MarketSnapshot, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(idx int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = a.assembleOne(ctx, sym)
		}(i, symbol)
	}
	wg.Wait()

	return results
}

func (a *Assembler) assembleOne(ctx context.Context, symbol string) model.MarketSnapshot {
	snap := model.MarketSnapshot{Symbol: symbol, FetchedAt: time.Now()}

	if price, err := a.exchange.GetMarkPrice(ctx, symbol); err != nil {
		a.markMissing(&snap, "markPrice", symbol, err)
	} else {
		snap.MarkPrice = price
		snap.LastPrice = price
	}

	if rate, next, err := a.exchange.GetFundingRate(ctx, symbol); err != nil {
		a.markMissing(&snap, "fundingRate", symbol, err)
	} else {
		snap.FundingRate = rate
		snap.NextFundingTime = next
	}

	if oi, err := a.exchange.GetOpenInterest(ctx, symbol); err != nil {
		a.markMissing(&snap, "openInterest", symbol, err)
	} else {
		snap.OpenInterest = oi
	}

	if candles, err := a.exchange.GetKlines(ctx, symbol, Interval1m, 60); err != nil {
		a.markMissing(&snap, "candles1m", symbol, err)
	} else {
		snap.Candles1m = candles
	}

	if candles, err := a.exchange.GetKlines(ctx, symbol, Interval5m, 60); err != nil {
		a.markMissing(&snap, "candles5m", symbol, err)
	} else {
		snap.Candles5m = candles
	}

	if candles, err := a.exchange.GetKlines(ctx, symbol, Interval1h, 48); err != nil {
		a.markMissing(&snap, "candles1h", symbol, err)
	} else {
		snap.Candles1h = candles
	}

	if bids, asks, err := a.exchange.GetDepth(ctx, symbol, 20); err != nil {
		a.markMissing(&snap, "orderBook", symbol, err)
	} else {
		snap.OrderBookBids = bids
		snap.OrderBookAsks = asks
	}

	if balance, err := a.exchange.GetAccountBalance(ctx); err != nil {
		a.markMissing(&snap, "accountBalance", symbol, err)
	} else {
		snap.AccountBalance = balance
	}

	if position, err := a.exchange.GetPosition(ctx, symbol); err != nil {
		a.markMissing(&snap, "position", symbol, err)
	} else {
		snap.Position = position
	}

	snap.Timeframes = make(map[string]model.Indicators, 3)
	if len(snap.Candles1m) > 0 {
		snap.Indicators = indicators.Compute(snap.Candles1m)
		snap.Timeframes[string(Interval1m)] = snap.Indicators
	}
	if len(snap.Candles5m) > 0 {
		snap.Timeframes[string(Interval5m)] = indicators.Compute(snap.Candles5m)
	}
	if len(snap.Candles1h) > 0 {
		snap.Timeframes[string(Interval1h)] = indicators.Compute(snap.Candles1h)
	}

	return snap
}

func (a *Assembler) markMissing(snap *model.MarketSnapshot, field, symbol string, err error) {
	snap.Partial = true
	snap.MissingFields = append(snap.MissingFields, field)
	log.Warn().Err(err).Str("symbol", symbol).Str("field", field).Msg("snapshot component fetch failed")
}
