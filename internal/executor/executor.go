// Package executor drives one decision through the order-placement state
// machine: set leverage, size the order, submit the entry, resolve its
// fill, then place protective TP/SL sized to the actual position. A
// rejected leverage change is logged and skipped; a failure at any later
// step marks the decision Failed and returns without panicking or
// aborting the rest of the cycle.
package executor

import (
	"context"
	"math"
	"time"

	"futures-llm-agent/internal/cfg"
	"futures-llm-agent/internal/errs"
	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const component = "executor"

// Exchange is the narrow view of the exchange adapter the executor needs.
// *usdm.Client satisfies this directly.
type Exchange interface {
	GetSymbol(ctx context.Context, symbol string) (model.Symbol, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetPosition(ctx context.Context, symbol string) (model.Position, error)
	PlaceOrder(ctx context.Context, req usdm.OrderRequest) (usdm.OrderResult, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (usdm.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	ListOpenOrders(ctx context.Context, symbol string) ([]usdm.OrderResult, error)
}

// terminal polled LIMIT order statuses.
var terminalStatuses = map[string]bool{
	"FILLED":   true,
	"CANCELED": true,
	"REJECTED": true,
	"EXPIRED":  true,
}

// Executor runs decisions through the state machine.
type Executor struct {
	exchange     Exchange
	settings     *cfg.Settings
	pollInterval time.Duration
}

// New constructs an Executor.
func New(exchange Exchange, settings *cfg.Settings) *Executor {
	return &Executor{exchange: exchange, settings: settings, pollInterval: time.Second}
}

// Execute runs one decision through the full state machine and returns its
// final ExecutionRecord. It never panics and never returns an error
// directly — a final failure marks the decision Failed on the record
// itself and execution continues with the next decision.
func (e *Executor) Execute(ctx context.Context, d model.Decision, snap model.MarketSnapshot) model.ExecutionRecord {
	now := time.Now()
	rec := model.ExecutionRecord{Symbol: d.Symbol, Decision: d, State: model.StateReceived, StartedAt: now, UpdatedAt: now}

	if d.Action == model.ActionHold {
		return rec
	}

	sym, err := e.exchange.GetSymbol(ctx, d.Symbol)
	if err != nil {
		return e.fail(rec, err)
	}

	if isOpenLike(d.Action) {
		if err := e.exchange.SetLeverage(ctx, d.Symbol, d.Leverage); err != nil {
			log.Warn().Err(err).Str("symbol", d.Symbol).Msg("leverage change rejected, continuing with existing leverage")
		}
	}
	rec.State = model.StateLeverageSet
	rec.UpdatedAt = time.Now()

	switch d.Action {
	case model.ActionOpenLong, model.ActionOpenShort:
		return e.executeOpen(ctx, rec, d, snap, sym)
	case model.ActionClose:
		return e.executeReduce(ctx, rec, d, snap, sym)
	case model.ActionAdjustSLTP:
		return e.executeAdjustProtective(ctx, rec, d, snap, sym)
	case model.ActionCancelSLTP:
		return e.executeCancelProtective(ctx, rec, d.Symbol)
	default:
		return rec
	}
}

func isOpenLike(a model.Action) bool {
	return a == model.ActionOpenLong || a == model.ActionOpenShort
}

func (e *Executor) executeOpen(ctx context.Context, rec model.ExecutionRecord, d model.Decision, snap model.MarketSnapshot, sym model.Symbol) model.ExecutionRecord {
	last := snap.MarkPrice
	if last == 0 {
		last = snap.LastPrice
	}
	if last <= 0 {
		return e.fail(rec, errs.New(errs.KindValidationFailed, component, "no reference price available to size order"))
	}

	qty := sizeOpenQuantity(d.PositionSizeUsdt, d.Leverage, last, sym)
	if qty <= 0 {
		return e.fail(rec, errs.New(errs.KindValidationFailed, component, "sized quantity is non-positive"))
	}
	rec.State = model.StateSized
	rec.UpdatedAt = time.Now()

	side := usdm.SideBuy
	if d.Action == model.ActionOpenShort {
		side = usdm.SideSell
	}

	req := usdm.OrderRequest{
		Symbol:        d.Symbol,
		Side:          side,
		Type:          usdm.OrderTypeMarket,
		Quantity:      qty,
		ClientOrderID: uuid.NewString(),
	}
	if d.OrderType == model.OrderTypeLimit {
		req.Type = usdm.OrderTypeLimit
		req.Price = quantize(d.EntryPrice, sym.TickSize)
	}

	result, err := e.submitEntry(ctx, req)
	if err != nil {
		return e.fail(rec, err)
	}
	rec.State = model.StateEntrySubmitted
	rec.EntryOrderID = result.OrderID
	rec.UpdatedAt = time.Now()

	if result.Status != "FILLED" {
		return e.fail(rec, errs.New(errs.KindOrderNotFilled, component, "entry order did not fill: "+result.Status))
	}
	rec.State = model.StateEntryResolved
	rec.FilledQty = result.FilledQty
	rec.FilledPrice = result.FilledPrice
	rec.UpdatedAt = time.Now()

	return e.placeProtective(ctx, rec, d, snap, sym)
}

// submitEntry places the entry order. MARKET orders resolve immediately
// from the placement response; LIMIT orders are polled until a terminal
// status or the configured max wait elapses — on timeout the order is
// cancelled and the decision fails, it never silently falls back to a
// market order.
func (e *Executor) submitEntry(ctx context.Context, req usdm.OrderRequest) (usdm.OrderResult, error) {
	var result usdm.OrderResult
	err := usdm.WithRetry(ctx, component, func() error {
		r, placeErr := e.exchange.PlaceOrder(ctx, req)
		if placeErr != nil {
			return placeErr
		}
		result = r
		return nil
	})
	if err != nil {
		return usdm.OrderResult{}, err
	}
	if req.Type == usdm.OrderTypeMarket {
		return result, nil
	}
	return e.pollUntilTerminal(ctx, req.Symbol, result.OrderID)
}

func (e *Executor) pollUntilTerminal(ctx context.Context, symbol, orderID string) (usdm.OrderResult, error) {
	maxWait := e.settings.LimitOrderMaxWait
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	interval := e.pollInterval
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(maxWait)
	for {
		result, err := e.exchange.GetOrderStatus(ctx, symbol, orderID)
		if err != nil {
			return usdm.OrderResult{}, err
		}
		if terminalStatuses[result.Status] {
			return result, nil
		}
		if time.Now().After(deadline) {
			_ = e.exchange.CancelOrder(ctx, symbol, orderID)
			return usdm.OrderResult{}, errs.New(errs.KindOrderNotFilled, component, "limit order did not resolve before max wait")
		}
		select {
		case <-ctx.Done():
			return usdm.OrderResult{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (e *Executor) executeReduce(ctx context.Context, rec model.ExecutionRecord, d model.Decision, snap model.MarketSnapshot, sym model.Symbol) model.ExecutionRecord {
	position, err := e.exchange.GetPosition(ctx, d.Symbol)
	if err != nil {
		return e.fail(rec, err)
	}
	if position.Quantity == 0 {
		return e.fail(rec, errs.New(errs.KindNoPositionToReduce, component, "no open position to reduce"))
	}

	percent := d.ReducePercent
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	qty := snapDown(position.Quantity*percent/100, sym.StepSize)
	if qty > position.Quantity {
		qty = position.Quantity
	}
	if qty <= 0 {
		return e.fail(rec, errs.New(errs.KindValidationFailed, component, "sized reduce quantity is non-positive"))
	}
	rec.State = model.StateSized
	rec.UpdatedAt = time.Now()

	side := usdm.SideSell
	if position.Side == "short" {
		side = usdm.SideBuy
	}

	req := usdm.OrderRequest{
		Symbol:        d.Symbol,
		Side:          side,
		Type:          usdm.OrderTypeMarket,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	}

	result, err := e.submitEntry(ctx, req)
	if err != nil {
		return e.fail(rec, err)
	}
	rec.State = model.StateEntrySubmitted
	rec.EntryOrderID = result.OrderID
	rec.UpdatedAt = time.Now()

	if result.Status != "FILLED" {
		return e.fail(rec, errs.New(errs.KindOrderNotFilled, component, "reduce order did not fill: "+result.Status))
	}
	rec.State = model.StateDone
	rec.FilledQty = result.FilledQty
	rec.FilledPrice = result.FilledPrice
	rec.UpdatedAt = time.Now()

	// If the reduce brought the position to zero, clear any protective
	// orders left on the symbol.
	if remaining, err := e.exchange.GetPosition(ctx, d.Symbol); err == nil && remaining.Quantity == 0 {
		e.cancelProtective(ctx, d.Symbol)
	}

	return rec
}

func (e *Executor) executeAdjustProtective(ctx context.Context, rec model.ExecutionRecord, d model.Decision, snap model.MarketSnapshot, sym model.Symbol) model.ExecutionRecord {
	rec.State = model.StateEntryResolved
	rec.UpdatedAt = time.Now()
	return e.placeProtective(ctx, rec, d, snap, sym)
}

// executeCancelProtective handles cancel_tp_sl: cancel every resting
// STOP_MARKET/TAKE_PROFIT_MARKET order on the symbol and stop, without
// placing replacements (spec.md §4.F.6 — distinct from adjust_tp_sl, which
// cancels then re-places sized to the current position).
func (e *Executor) executeCancelProtective(ctx context.Context, rec model.ExecutionRecord, symbol string) model.ExecutionRecord {
	e.cancelProtective(ctx, symbol)
	rec.State = model.StateDone
	rec.UpdatedAt = time.Now()
	return rec
}

// placeProtective cancels any existing TP/SL on the symbol, reads the
// authoritative position size from the exchange (handling partial fills
// and adds), and places fresh STOP_MARKET/TAKE_PROFIT_MARKET orders
// against it.
func (e *Executor) placeProtective(ctx context.Context, rec model.ExecutionRecord, d model.Decision, snap model.MarketSnapshot, sym model.Symbol) model.ExecutionRecord {
	e.cancelProtective(ctx, d.Symbol)

	position, err := e.exchange.GetPosition(ctx, d.Symbol)
	if err != nil {
		return e.fail(rec, err)
	}
	if position.Quantity <= 0 {
		return e.fail(rec, errs.New(errs.KindNoPositionToReduce, component, "no position to protect after entry"))
	}

	last := snap.MarkPrice
	if last == 0 {
		last = snap.LastPrice
	}

	sl, tp := adjustForImmediateTrigger(position.Side, last, d.StopLossPrice, d.TakeProfitPrice, sym.TickSize)

	closeSide := usdm.SideSell
	if position.Side == "short" {
		closeSide = usdm.SideBuy
	}

	slResult, err := e.exchange.PlaceOrder(ctx, usdm.OrderRequest{
		Symbol:        d.Symbol,
		Side:          closeSide,
		Type:          usdm.OrderTypeStopMarket,
		Quantity:      position.Quantity,
		StopPrice:     sl,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return e.fail(rec, err)
	}
	rec.SLOrderID = slResult.OrderID

	tpResult, err := e.exchange.PlaceOrder(ctx, usdm.OrderRequest{
		Symbol:        d.Symbol,
		Side:          closeSide,
		Type:          usdm.OrderTypeTakeProfitMarket,
		Quantity:      position.Quantity,
		StopPrice:     tp,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return e.fail(rec, err)
	}
	rec.TPOrderID = tpResult.OrderID
	rec.State = model.StateDone
	rec.UpdatedAt = time.Now()
	return rec
}

// cancelProtective cancels every open STOP_MARKET/TAKE_PROFIT_MARKET order
// for symbol, tolerating a cancel failure on an order that already
// resolved on its own.
func (e *Executor) cancelProtective(ctx context.Context, symbol string) {
	orders, err := e.exchange.ListOpenOrders(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to list open orders for protective cancel")
		return
	}
	for _, o := range orders {
		if o.Type != usdm.OrderTypeStopMarket && o.Type != usdm.OrderTypeTakeProfitMarket {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Str("orderId", o.OrderID).Msg("failed to cancel existing protective order")
		}
	}
}

func (e *Executor) fail(rec model.ExecutionRecord, err error) model.ExecutionRecord {
	rec.State = model.StateFailed
	rec.FailureReason = err.Error()
	rec.UpdatedAt = time.Now()
	log.Error().Err(err).Str("symbol", rec.Symbol).Str("state", string(rec.State)).Msg("decision execution failed")
	return rec
}

// sizeOpenQuantity computes an open/add order's quantity:
// usdtAmount*leverage / last, snapped to stepSize, floored to minQty; if
// the resulting notional is still below minNotional, rounds up to the
// smallest step-aligned quantity that clears it.
func sizeOpenQuantity(usdtAmount float64, leverage int, last float64, sym model.Symbol) float64 {
	if usdtAmount <= 0 || leverage <= 0 || last <= 0 {
		return 0
	}
	qty := snapDown(usdtAmount*float64(leverage)/last, sym.StepSize)
	if sym.MinQty > 0 && qty < sym.MinQty {
		qty = sym.MinQty
	}
	if sym.MinNotionalUsdt > 0 && qty*last < sym.MinNotionalUsdt {
		qty = snapUp(sym.MinNotionalUsdt/last, sym.StepSize)
	}
	return qty
}

func snapDown(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

func snapUp(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Ceil(qty/step) * step
}

func quantize(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// adjustForImmediateTrigger enforces the directional rule: a long's stop
// must sit below last and take-profit above it (symmetric
// for shorts). If the proposed price would trigger immediately, it is
// shifted by exactly one tick beyond last in the safe direction, then
// quantized in the direction that keeps it on the safe side: down for
// levels that must stay below last, up for levels that must stay above.
func adjustForImmediateTrigger(side string, last, sl, tp, tick float64) (adjSL, adjTP float64) {
	if side == "short" {
		if sl <= last {
			sl = last + tick
		}
		if tp >= last {
			tp = last - tick
		}
		return snapUp(sl, tick), snapDown(tp, tick)
	}
	if sl >= last {
		sl = last - tick
	}
	if tp <= last {
		tp = last + tick
	}
	return snapDown(sl, tick), snapUp(tp, tick)
}
