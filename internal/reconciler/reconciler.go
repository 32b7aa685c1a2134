// Package reconciler sweeps orphaned protective orders: stop-loss and
// take-profit orders left behind on symbols whose position has since gone
// flat, because the counterpart fired between cycles or a reduce/close
// emptied the position.
package reconciler

import (
	"context"

	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/model"

	"github.com/rs/zerolog/log"
)

const component = "reconciler"

// Exchange is the subset of usdm.Client the reconciler needs. *usdm.Client
// satisfies it directly.
type Exchange interface {
	ListOpenOrders(ctx context.Context, symbol string) ([]usdm.OrderResult, error)
	GetPosition(ctx context.Context, symbol string) (model.Position, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Reconciler cancels protective orders orphaned by their position going
// flat.
type Reconciler struct {
	exchange Exchange
}

// New constructs a Reconciler over the given exchange adapter.
func New(exchange Exchange) *Reconciler {
	return &Reconciler{exchange: exchange}
}

// Sweep lists every open order on the account (all symbols), reads the
// position of each of the given symbols, and cancels any STOP_MARKET or
// TAKE_PROFIT_MARKET order whose symbol was not found non-flat, including
// orders on symbols outside the given list, whose positions are not read.
// It returns the order IDs it cancelled. A failure cancelling one order does not stop the sweep
// from attempting the rest.
func (r *Reconciler) Sweep(ctx context.Context, symbols []string) ([]string, error) {
	orders, err := r.exchange.ListOpenOrders(ctx, "")
	if err != nil {
		return nil, err
	}

	nonFlat := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		pos, err := r.exchange.GetPosition(ctx, sym)
		if err != nil {
			log.Warn().Str("component", component).Str("symbol", sym).Err(err).
				Msg("could not read position for reconciliation, assuming non-flat")
			nonFlat[sym] = true
			continue
		}
		if pos.Quantity != 0 {
			nonFlat[sym] = true
		}
	}

	var cancelled []string
	for _, o := range orders {
		if !isProtective(o.Type) {
			continue
		}
		if nonFlat[o.Symbol] {
			continue
		}
		if err := r.exchange.CancelOrder(ctx, o.Symbol, o.OrderID); err != nil {
			log.Warn().Str("component", component).Str("symbol", o.Symbol).
				Str("orderId", o.OrderID).Err(err).Msg("failed to cancel orphan protective order")
			continue
		}
		log.Info().Str("component", component).Str("symbol", o.Symbol).
			Str("orderId", o.OrderID).Str("type", string(o.Type)).
			Msg("cancelled orphan protective order")
		cancelled = append(cancelled, o.OrderID)
	}

	return cancelled, nil
}

func isProtective(t usdm.OrderType) bool {
	return t == usdm.OrderTypeStopMarket || t == usdm.OrderTypeTakeProfitMarket
}
