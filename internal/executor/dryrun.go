package executor

import (
	"context"
	"fmt"
	"sync"

	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/model"

	"github.com/rs/zerolog/log"
)

// DryRunExchange wraps a real Exchange and simulates every order-mutating
// call instead of sending it to the exchange: leverage changes, order
// placement, and cancellation are recorded against an in-memory paper
// position/open-order book instead. GetSymbol is the only call passed
// straight through to the real adapter, so sizing still uses real
// tick/step/notional metadata; position and order reads are answered
// from the paper book.
//
// This is the CLI's "--execute not set" path (spec.md §6: "Without
// --execute, all orders are dry-run regardless of dryRun") and the
// cfg.Settings.DryRun == true path: both route through the same
// decorator so there is exactly one simulated-fill code path to trust.
type DryRunExchange struct {
	real Exchange

	mu        sync.Mutex
	positions map[string]model.Position
	orders    map[string]usdm.OrderResult
	seq       int
}

// NewDryRunExchange wraps real in a paper-trading decorator.
func NewDryRunExchange(real Exchange) *DryRunExchange {
	return &DryRunExchange{
		real:      real,
		positions: make(map[string]model.Position),
		orders:    make(map[string]usdm.OrderResult),
	}
}

// GetSymbol passes through — sizing needs the real exchange's trading
// rules even in dry run.
func (d *DryRunExchange) GetSymbol(ctx context.Context, symbol string) (model.Symbol, error) {
	return d.real.GetSymbol(ctx, symbol)
}

// SetLeverage is simulated: no request is sent, nothing to reject.
func (d *DryRunExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	log.Info().Str("component", component).Str("symbol", symbol).Int("leverage", leverage).
		Msg("dry run: leverage change simulated, not sent")
	return nil
}

// GetPosition returns the paper position for symbol, or the flat zero
// value if none has been simulated yet.
func (d *DryRunExchange) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.positions[symbol]; ok {
		return p, nil
	}
	return model.Position{Symbol: symbol}, nil
}

// PlaceOrder simulates an immediate fill for entry/reduce orders and a
// resting NEW order for protective stops, updating the paper
// position/open-order book accordingly. No request reaches the exchange.
func (d *DryRunExchange) PlaceOrder(ctx context.Context, req usdm.OrderRequest) (usdm.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	orderID := fmt.Sprintf("DRYRUN-%d", d.seq)

	result := usdm.OrderResult{
		OrderID:    orderID,
		Symbol:     req.Symbol,
		Type:       req.Type,
		ReduceOnly: req.ReduceOnly,
	}

	switch req.Type {
	case usdm.OrderTypeStopMarket, usdm.OrderTypeTakeProfitMarket:
		result.Status = "NEW"
	default:
		fillPrice := req.Price
		if fillPrice <= 0 {
			fillPrice = req.StopPrice
		}
		result.Status = "FILLED"
		result.FilledQty = req.Quantity
		result.FilledPrice = fillPrice
		d.applyFill(req, fillPrice)
	}

	d.orders[orderID] = result
	log.Info().Str("component", component).Str("symbol", req.Symbol).Str("side", string(req.Side)).
		Str("type", string(req.Type)).Float64("qty", req.Quantity).Str("orderId", orderID).
		Msg("dry run: order simulated, not sent")
	return result, nil
}

// applyFill updates the paper position book for an entry/reduce fill.
func (d *DryRunExchange) applyFill(req usdm.OrderRequest, price float64) {
	pos, ok := d.positions[req.Symbol]
	if !ok {
		pos = model.Position{Symbol: req.Symbol}
	}

	signed := pos.Quantity
	if pos.Side == "short" {
		signed = -signed
	}

	delta := req.Quantity
	if req.Side == usdm.SideSell {
		delta = -delta
	}
	signed += delta

	if signed > 1e-12 {
		pos.Side = "long"
		pos.Quantity = signed
	} else if signed < -1e-12 {
		pos.Side = "short"
		pos.Quantity = -signed
	} else {
		pos = model.Position{Symbol: req.Symbol}
	}
	if !req.ReduceOnly && price > 0 {
		pos.EntryPrice = price
	}

	d.positions[req.Symbol] = pos
}

// GetOrderStatus returns the last recorded state of a simulated order;
// entries and reduces are always immediately FILLED, so the executor's
// LIMIT poll loop never actually waits in dry run.
func (d *DryRunExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (usdm.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.orders[orderID]; ok {
		return r, nil
	}
	return usdm.OrderResult{OrderID: orderID, Status: "FILLED"}, nil
}

// CancelOrder removes a simulated resting order.
func (d *DryRunExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.orders, orderID)
	return nil
}

// ListOpenOrders returns every simulated resting (non-terminal) order,
// across all symbols if symbol is empty, mirroring the real exchange's
// ListOpenOrders so the Reconciler's orphan sweep works unmodified in dry
// run.
func (d *DryRunExchange) ListOpenOrders(ctx context.Context, symbol string) ([]usdm.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []usdm.OrderResult
	for _, o := range d.orders {
		if o.Status != "NEW" {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
