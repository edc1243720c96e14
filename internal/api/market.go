package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/kucoin-data/internal/model"
)

// GetServerTime returns the venue clock.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var ms int64
	if err := c.get(ctx, "/api/v1/timestamp", nil, &ms); err != nil {
		return time.Time{}, fmt.Errorf("get server time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// GetTicker returns the best bid/ask and last trade of one symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*model.Level1, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var resp model.Level1
	if err := c.get(ctx, "/api/v1/market/orderbook/level1", query, &resp); err != nil {
		return nil, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetAllTickers returns the 24h summary of every symbol.
func (c *Client) GetAllTickers(ctx context.Context) (*model.AllTickers, error) {
	var resp model.AllTickers
	if err := c.get(ctx, "/api/v1/market/allTickers", nil, &resp); err != nil {
		return nil, fmt.Errorf("get all tickers: %w", err)
	}
	return &resp, nil
}

// GetSymbols lists trading pairs, optionally filtered by market ("" for all).
func (c *Client) GetSymbols(ctx context.Context, market string) ([]model.SymbolInfo, error) {
	var query url.Values
	if market != "" {
		query = url.Values{}
		query.Set("market", market)
	}

	var resp []model.SymbolInfo
	if err := c.get(ctx, "/api/v2/symbols", query, &resp); err != nil {
		return nil, fmt.Errorf("get symbols: %w", err)
	}
	return resp, nil
}

// GetOrderBook fetches a REST order book snapshot. DepthFull uses the signed
// full-depth endpoint.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth OrderBookDepth) (*model.OrderBook, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var resp model.OrderBook
	var err error
	switch depth {
	case Depth20:
		err = c.get(ctx, "/api/v1/market/orderbook/level2_20", query, &resp)
	case Depth100:
		err = c.get(ctx, "/api/v1/market/orderbook/level2_100", query, &resp)
	case DepthFull:
		err = c.signedGet(ctx, "/api/v3/market/orderbook/level2", query, &resp)
	default:
		return nil, fmt.Errorf("get orderbook %s: unsupported depth %d", symbol, int(depth))
	}
	if err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetDailyStats returns the 24h summary of one symbol.
func (c *Client) GetDailyStats(ctx context.Context, symbol string) (*model.DailyStats, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var resp model.DailyStats
	if err := c.get(ctx, "/api/v1/market/stats", query, &resp); err != nil {
		return nil, fmt.Errorf("get daily stats %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetMarkets lists the trading market names, e.g. "USDS" or "BTC".
func (c *Client) GetMarkets(ctx context.Context) ([]string, error) {
	var resp []string
	if err := c.get(ctx, "/api/v1/markets", nil, &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	return resp, nil
}

// GetTradeHistories returns the most recent trades of one symbol.
func (c *Client) GetTradeHistories(ctx context.Context, symbol string) ([]model.TradeHistory, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var resp []model.TradeHistory
	if err := c.get(ctx, "/api/v1/market/histories", query, &resp); err != nil {
		return nil, fmt.Errorf("get trade histories %s: %w", symbol, err)
	}
	return resp, nil
}

// GetCandles returns klines for symbol. Zero start or end leaves that bound
// to the venue.
func (c *Client) GetCandles(ctx context.Context, symbol string, interval CandleInterval, start, end time.Time) ([]model.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("get candles %s: unsupported interval %q", symbol, interval)
	}
	query := url.Values{}
	query.Set("type", string(interval))
	query.Set("symbol", symbol)
	if !start.IsZero() {
		query.Set("startAt", strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		query.Set("endAt", strconv.FormatInt(end.Unix(), 10))
	}

	var resp []model.Candle
	if err := c.get(ctx, "/api/v1/market/candles", query, &resp); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", symbol, err)
	}
	return resp, nil
}

// GetCurrencies lists every currency.
func (c *Client) GetCurrencies(ctx context.Context) ([]model.Currency, error) {
	var resp []model.Currency
	if err := c.get(ctx, "/api/v1/currencies", nil, &resp); err != nil {
		return nil, fmt.Errorf("get currencies: %w", err)
	}
	return resp, nil
}

// GetCurrency returns one currency. chain may be empty.
func (c *Client) GetCurrency(ctx context.Context, currency string, chain Chain) (*model.Currency, error) {
	var query url.Values
	if chain != "" {
		query = url.Values{}
		query.Set("chain", string(chain))
	}

	var resp model.Currency
	if err := c.get(ctx, "/api/v1/currencies/"+url.PathEscape(currency), query, &resp); err != nil {
		return nil, fmt.Errorf("get currency %s: %w", currency, err)
	}
	return &resp, nil
}

// GetFiatPrices returns currency prices in base (default USD). An empty
// currencies list returns every currency.
func (c *Client) GetFiatPrices(ctx context.Context, base string, currencies []string) (model.FiatPrices, error) {
	query := url.Values{}
	if base != "" {
		query.Set("base", base)
	}
	if len(currencies) > 0 {
		query.Set("currencies", strings.Join(currencies, ","))
	}

	var resp model.FiatPrices
	if err := c.get(ctx, "/api/v1/prices", query, &resp); err != nil {
		return nil, fmt.Errorf("get fiat prices: %w", err)
	}
	return resp, nil
}

// GetMarkPrice returns the current margin mark price of symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (*model.MarkPrice, error) {
	var resp model.MarkPrice
	if err := c.get(ctx, "/api/v1/mark-price/"+url.PathEscape(symbol)+"/current", nil, &resp); err != nil {
		return nil, fmt.Errorf("get mark price %s: %w", symbol, err)
	}
	return &resp, nil
}
