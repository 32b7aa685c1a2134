package usdm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures-llm-agent/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New("key", "secret", srv.URL, 2*time.Second, nil)
	return c, srv.Close
}

func TestGetMarkPrice(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"markPrice":"65000.5"}`))
	})
	defer closeFn()

	price, err := c.GetMarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 65000.5, price)
}

func TestGetMarkPrice_BusinessError(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":1001,"msg":"invalid symbol"}`))
	})
	defer closeFn()

	_, err := c.GetMarkPrice(context.Background(), "NOPE")
	require.Error(t, err)
}

func TestGetMarkPrice_ServerErrorIsTransient(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	_, err := c.GetMarkPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransientNetwork))
}

func TestGetPosition_Flat(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"0","entryPrice":"0","unRealizedProfit":"0","leverage":"5","liquidationPrice":"0"}]`))
	})
	defer closeFn()

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "", pos.Side)
}

func TestGetPosition_Short(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"-1.5","entryPrice":"65000","unRealizedProfit":"-10","leverage":"5","liquidationPrice":"70000"}]`))
	})
	defer closeFn()

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "short", pos.Side)
	assert.Equal(t, 1.5, pos.Quantity)
}

func TestPlaceOrder(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":42,"status":"FILLED","executedQty":"0.01","avgPrice":"65000"}`))
	})
	defer closeFn()

	res, err := c.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          SideBuy,
		Type:          OrderTypeMarket,
		Quantity:      0.01,
		ClientOrderID: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, "FILLED", res.Status)
	assert.Equal(t, 0.01, res.FilledQty)
}

func TestListOpenOrders(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"orderId":1,"symbol":"BTCUSDT","status":"NEW","type":"STOP_MARKET","reduceOnly":true,"executedQty":"0","avgPrice":"0"}]`))
	})
	defer closeFn()

	orders, err := c.ListOpenOrders(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].OrderID)
	assert.Equal(t, "BTCUSDT", orders[0].Symbol)
	assert.Equal(t, OrderTypeStopMarket, orders[0].Type)
	assert.True(t, orders[0].ReduceOnly)
}

func TestDecimalsOf(t *testing.T) {
	assert.Equal(t, 2, decimalsOf(0.01))
	assert.Equal(t, 0, decimalsOf(1))
	assert.Equal(t, 3, decimalsOf(0.001))
}
