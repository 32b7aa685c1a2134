package executor

import (
	"context"
	"testing"

	"futures-llm-agent/internal/exchange/usdm"
	"futures-llm-agent/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunExchange_OpenAndProtectFlowNeverCallsReal(t *testing.T) {
	real := &fakeExchange{symbol: model.Symbol{Name: "BTCUSDT", StepSize: 0.001, TickSize: 0.1}}
	d := NewDryRunExchange(real)
	ctx := context.Background()

	require.NoError(t, d.SetLeverage(ctx, "BTCUSDT", 10))

	result, err := d.PlaceOrder(ctx, usdm.OrderRequest{
		Symbol: "BTCUSDT", Side: usdm.SideBuy, Type: usdm.OrderTypeMarket, Quantity: 0.02,
	})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.Equal(t, 0.02, result.FilledQty)

	pos, err := d.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "long", pos.Side)
	assert.InDelta(t, 0.02, pos.Quantity, 1e-9)

	sl, err := d.PlaceOrder(ctx, usdm.OrderRequest{
		Symbol: "BTCUSDT", Side: usdm.SideSell, Type: usdm.OrderTypeStopMarket,
		Quantity: 0.02, StopPrice: 29000, ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW", sl.Status)

	open, err := d.ListOpenOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, usdm.OrderTypeStopMarket, open[0].Type)

	require.NoError(t, d.CancelOrder(ctx, "BTCUSDT", sl.OrderID))
	open, err = d.ListOpenOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.Empty(t, real.placedOrders, "no order should ever reach the real exchange in dry run")
}

func TestDryRunExchange_ReduceClosesPaperPosition(t *testing.T) {
	real := &fakeExchange{}
	d := NewDryRunExchange(real)
	ctx := context.Background()

	_, err := d.PlaceOrder(ctx, usdm.OrderRequest{Symbol: "ETHUSDT", Side: usdm.SideSell, Type: usdm.OrderTypeMarket, Quantity: 1})
	require.NoError(t, err)
	pos, _ := d.GetPosition(ctx, "ETHUSDT")
	assert.Equal(t, "short", pos.Side)

	_, err = d.PlaceOrder(ctx, usdm.OrderRequest{Symbol: "ETHUSDT", Side: usdm.SideBuy, Type: usdm.OrderTypeMarket, Quantity: 1, ReduceOnly: true})
	require.NoError(t, err)
	pos, _ = d.GetPosition(ctx, "ETHUSDT")
	assert.Equal(t, "", pos.Side)
	assert.Equal(t, 0.0, pos.Quantity)
}
