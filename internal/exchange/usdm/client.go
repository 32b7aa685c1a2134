// Package usdm implements the Exchange Adapter (spec.md §4.A): a REST
// client for a USDT-margined perpetual futures exchange, responsible for
// market data, account/position state, leverage, and order placement —
// and for translating the exchange's wire errors into the agent's typed
// error taxonomy so callers can decide whether to retry.
package usdm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"futures-llm-agent/internal/errs"
	"futures-llm-agent/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client is a REST client for the USDT-margined futures exchange. It
// pools connections like the teacher's bitunix REST client and caches
// symbol trading-rule metadata to avoid refetching it every cycle.
type Client struct {
	key, secret, base string
	rest              *resty.Client
	symbolCache       *SymbolCache
}

// New creates a Client with pooled HTTP transport settings. symbolCache
// may be nil; a nil cache simply means every GetSymbol call round-trips
// to the exchange (spec.md §6: "Persisted state: none required for
// correctness").
func New(key, secret, base string, timeout time.Duration, symbolCache *SymbolCache) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}

	return &Client{
		key:         key,
		secret:      secret,
		base:        base,
		rest:        r,
		symbolCache: symbolCache,
	}
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) signedRequest(ctx context.Context) *resty.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return c.rest.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.key).
		SetHeader("X-TIMESTAMP", ts).
		SetHeader("X-SIGNATURE", sign(c.secret, ts+c.key))
}

// classify turns a resty error/response pair into a typed error. Network
// failures and 5xx responses are Transient; a non-zero exchange error
// code or any other 4xx response is Business; anything else is success
// (nil).
func classify(component string, err error, resp *resty.Response, body apiError) error {
	if err != nil {
		return errs.Wrap(errs.KindTransientNetwork, component, "request failed", err)
	}
	if resp.StatusCode() >= 500 {
		return errs.New(errs.KindTransientNetwork, component, fmt.Sprintf("exchange returned %d", resp.StatusCode()))
	}
	if body.Code != 0 {
		return errs.New(errs.KindExchangeBusiness, component, fmt.Sprintf("%d: %s", body.Code, body.Msg))
	}
	if resp.StatusCode() >= 400 {
		return errs.New(errs.KindExchangeBusiness, component, fmt.Sprintf("exchange returned %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// GetSymbol returns trading-rule metadata for symbol, preferring the
// in-process/bbolt cache over a network round trip.
func (c *Client) GetSymbol(ctx context.Context, symbol string) (model.Symbol, error) {
	if c.symbolCache != nil {
		if sym, ok := c.symbolCache.Get(symbol); ok {
			return sym, nil
		}
	}

	var out struct {
		apiError
		TickSize        string `json:"tickSize"`
		StepSize        string `json:"stepSize"`
		MinQty          string `json:"minQty"`
		MinNotionalUsdt string `json:"minNotionalUsdt"`
		MaxLeverage     int    `json:"maxLeverage"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get(c.base + "/fapi/v1/exchangeInfo")
	if e := classify("exchange.GetSymbol", err, resp, out.apiError); e != nil {
		return model.Symbol{}, e
	}

	tick, _ := strconv.ParseFloat(out.TickSize, 64)
	step, _ := strconv.ParseFloat(out.StepSize, 64)
	minQty, _ := strconv.ParseFloat(out.MinQty, 64)
	minNotional, _ := strconv.ParseFloat(out.MinNotionalUsdt, 64)

	sym := model.Symbol{
		Name:            symbol,
		TickSize:        tick,
		StepSize:        step,
		MinQty:          minQty,
		MinNotionalUsdt: minNotional,
		MaxLeverage:     out.MaxLeverage,
		PricePrecision:  decimalsOf(tick),
		QtyPrecision:    decimalsOf(step),
	}
	if c.symbolCache != nil {
		c.symbolCache.Put(sym)
	}
	return sym, nil
}

// GetMarkPrice returns the current mark price used for liquidation and
// unrealized PnL calculations.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		apiError
		MarkPrice string `json:"markPrice"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get(c.base + "/fapi/v1/premiumIndex")
	if e := classify("exchange.GetMarkPrice", err, resp, out.apiError); e != nil {
		return 0, e
	}
	price, _ := strconv.ParseFloat(out.MarkPrice, 64)
	return price, nil
}

// GetFundingRate returns the current funding rate and the next funding
// time for symbol.
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (rate float64, nextFundingTime time.Time, err error) {
	var out struct {
		apiError
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	resp, reqErr := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get(c.base + "/fapi/v1/premiumIndex")
	if e := classify("exchange.GetFundingRate", reqErr, resp, out.apiError); e != nil {
		return 0, time.Time{}, e
	}
	rate, _ = strconv.ParseFloat(out.LastFundingRate, 64)
	return rate, time.UnixMilli(out.NextFundingTime), nil
}

// GetOpenInterest returns the current open interest for symbol.
func (c *Client) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		apiError
		OpenInterest string `json:"openInterest"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get(c.base + "/fapi/v1/openInterest")
	if e := classify("exchange.GetOpenInterest", err, resp, out.apiError); e != nil {
		return 0, e
	}
	oi, _ := strconv.ParseFloat(out.OpenInterest, 64)
	return oi, nil
}

// Interval is a kline/candlestick bucket width.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
	Interval1h Interval = "1h"
)

// GetKlines fetches recent candles for symbol at the given interval.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval Interval, limit int) ([]model.Candle, error) {
	var raw [][]any
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": string(interval),
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw).
		Get(c.base + "/fapi/v1/klines")
	if e := classify("exchange.GetKlines", err, resp, apiError{}); e != nil {
		return nil, e
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, model.Candle{
			OpenTime: parseMillis(row[0]),
			Open:     parseFloatAny(row[1]),
			High:     parseFloatAny(row[2]),
			Low:      parseFloatAny(row[3]),
			Close:    parseFloatAny(row[4]),
			Volume:   parseFloatAny(row[5]),
		})
	}
	return candles, nil
}

// GetDepth fetches the order book for symbol, limited to depth levels
// per side.
func (c *Client) GetDepth(ctx context.Context, symbol string, depth int) (bids, asks []model.OrderBookLevel, err error) {
	var out struct {
		apiError
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	resp, reqErr := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "limit": strconv.Itoa(depth)}).
		SetResult(&out).
		Get(c.base + "/fapi/v1/depth")
	if e := classify("exchange.GetDepth", reqErr, resp, out.apiError); e != nil {
		return nil, nil, e
	}
	return toLevels(out.Bids), toLevels(out.Asks), nil
}

// GetAccountBalance returns the USDT wallet balance available for margin.
func (c *Client) GetAccountBalance(ctx context.Context) (float64, error) {
	var out struct {
		apiError
		Assets []struct {
			Asset              string `json:"asset"`
			AvailableBalance   string `json:"availableBalance"`
		} `json:"assets"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.base + "/fapi/v2/account")
	if e := classify("exchange.GetAccountBalance", err, resp, out.apiError); e != nil {
		return 0, e
	}
	for _, a := range out.Assets {
		if a.Asset == "USDT" {
			bal, _ := strconv.ParseFloat(a.AvailableBalance, 64)
			return bal, nil
		}
	}
	return 0, nil
}

// GetPosition returns the current position for symbol, or the zero
// value (Side == "") if flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	var out []struct {
		apiError
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		LiquidationPrice string `json:"liquidationPrice"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get(c.base + "/fapi/v2/positionRisk")
	if e := classify("exchange.GetPosition", err, resp, apiError{}); e != nil {
		return model.Position{}, e
	}
	for _, p := range out {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)
		liq, _ := strconv.ParseFloat(p.LiquidationPrice, 64)
		side := "long"
		if amt < 0 {
			side = "short"
			amt = -amt
		}
		return model.Position{
			Symbol:           symbol,
			Side:             side,
			Quantity:         amt,
			EntryPrice:       entry,
			UnrealizedPnL:    pnl,
			Leverage:         lev,
			LiquidationPrice: liq,
		}, nil
	}
	return model.Position{Symbol: symbol}, nil
}

// SetLeverage sets the account's leverage on symbol. Exchanges reject
// leverage changes while a position is open with a business error; the
// executor logs that rejection and continues with the existing leverage.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	var out apiError
	resp, err := c.signedRequest(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "leverage": strconv.Itoa(leverage)}).
		SetResult(&out).
		Post(c.base + "/fapi/v1/leverage")
	return classify("exchange.SetLeverage", err, resp, out)
}

// OrderSide is BUY or SELL.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType distinguishes entry orders from protective orders.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopMarket      OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// OrderRequest is a single order placement.
type OrderRequest struct {
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Quantity     float64
	Price        float64 // required for LIMIT
	StopPrice    float64 // required for STOP_MARKET/TAKE_PROFIT_MARKET
	ReduceOnly   bool
	ClientOrderID string
}

// OrderResult is the exchange's acknowledgement of an order placement, or
// one entry of an open-orders listing. Symbol and Type are only populated
// by ListOpenOrders, which the Reconciler needs to tell protective orders
// apart from entries across every symbol in one call.
type OrderResult struct {
	OrderID     string
	Symbol      string
	Type        OrderType
	ReduceOnly  bool
	Status      string // NEW, FILLED, PARTIALLY_FILLED, CANCELED, REJECTED, EXPIRED
	FilledQty   float64
	FilledPrice float64
}

// PlaceOrder submits an order and returns the exchange's immediate
// acknowledgement. Fill confirmation for non-market orders requires a
// subsequent GetOrderStatus poll.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var out struct {
		apiError
		OrderID       int64  `json:"orderId"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
	}

	params := map[string]string{
		"symbol":           req.Symbol,
		"side":             string(req.Side),
		"type":             string(req.Type),
		"quantity":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"newClientOrderId": req.ClientOrderID,
	}
	if req.Type == OrderTypeLimit {
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	}
	if req.Type == OrderTypeStopMarket || req.Type == OrderTypeTakeProfitMarket {
		params["stopPrice"] = strconv.FormatFloat(req.StopPrice, 'f', -1, 64)
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}

	resp, err := c.signedRequest(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Post(c.base + "/fapi/v1/order")
	if e := classify("exchange.PlaceOrder", err, resp, out.apiError); e != nil {
		return OrderResult{}, e
	}

	filledQty, _ := strconv.ParseFloat(out.ExecutedQty, 64)
	filledPrice, _ := strconv.ParseFloat(out.AvgPrice, 64)
	log.Debug().Str("symbol", req.Symbol).Str("side", string(req.Side)).Str("type", string(req.Type)).
		Int64("orderId", out.OrderID).Msg("order placed")

	return OrderResult{
		OrderID:     strconv.FormatInt(out.OrderID, 10),
		Status:      out.Status,
		FilledQty:   filledQty,
		FilledPrice: filledPrice,
	}, nil
}

// GetOrderStatus polls the status of a previously placed order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderResult, error) {
	var out struct {
		apiError
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		AvgPrice    string `json:"avgPrice"`
	}
	resp, err := c.signedRequest(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "orderId": orderID}).
		SetResult(&out).
		Get(c.base + "/fapi/v1/order")
	if e := classify("exchange.GetOrderStatus", err, resp, out.apiError); e != nil {
		return OrderResult{}, e
	}
	filledQty, _ := strconv.ParseFloat(out.ExecutedQty, 64)
	filledPrice, _ := strconv.ParseFloat(out.AvgPrice, 64)
	return OrderResult{
		OrderID:     strconv.FormatInt(out.OrderID, 10),
		Status:      out.Status,
		FilledQty:   filledQty,
		FilledPrice: filledPrice,
	}, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	var out apiError
	resp, err := c.signedRequest(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "orderId": orderID}).
		SetResult(&out).
		Delete(c.base + "/fapi/v1/order")
	return classify("exchange.CancelOrder", err, resp, out)
}

// ListOpenOrders returns all open orders, across symbols if symbol is
// empty — used by the Reconciler to find orphaned protective orders.
func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error) {
	var out []struct {
		apiError
		OrderID     int64  `json:"orderId"`
		Symbol      string `json:"symbol"`
		Status      string `json:"status"`
		Type        string `json:"type"`
		ReduceOnly  bool   `json:"reduceOnly"`
		ExecutedQty string `json:"executedQty"`
		AvgPrice    string `json:"avgPrice"`
	}
	req := c.signedRequest(ctx).SetResult(&out)
	if symbol != "" {
		req = req.SetQueryParam("symbol", symbol)
	}
	resp, err := req.Get(c.base + "/fapi/v1/openOrders")
	if e := classify("exchange.ListOpenOrders", err, resp, apiError{}); e != nil {
		return nil, e
	}

	results := make([]OrderResult, 0, len(out))
	for _, o := range out {
		qty, _ := strconv.ParseFloat(o.ExecutedQty, 64)
		price, _ := strconv.ParseFloat(o.AvgPrice, 64)
		results = append(results, OrderResult{
			OrderID:     strconv.FormatInt(o.OrderID, 10),
			Symbol:      o.Symbol,
			Type:        OrderType(o.Type),
			ReduceOnly:  o.ReduceOnly,
			Status:      o.Status,
			FilledQty:   qty,
			FilledPrice: price,
		})
	}
	return results, nil
}

func toLevels(raw [][]string) []model.OrderBookLevel {
	levels := make([]model.OrderBookLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(row[0], 64)
		qty, _ := strconv.ParseFloat(row[1], 64)
		levels = append(levels, model.OrderBookLevel{Price: price, Qty: qty})
	}
	return levels
}

func parseMillis(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t))
	default:
		return time.Time{}
	}
}

func parseFloatAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func decimalsOf(step float64) int {
	if step <= 0 {
		return 0
	}
	n := 0
	for step < 1 && n < 12 {
		step *= 10
		n++
	}
	return n
}
