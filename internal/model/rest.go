package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Level1 is the best bid/ask response of /api/v1/market/orderbook/level1.
type Level1 struct {
	Sequence    string `json:"sequence"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	BestBid     string `json:"bestBid"`
	BestBidSize string `json:"bestBidSize"`
	BestAsk     string `json:"bestAsk"`
	BestAskSize string `json:"bestAskSize"`
	Time        int64  `json:"time"` // ms
}

// AllTickers is the response of /api/v1/market/allTickers.
type AllTickers struct {
	Time   int64  `json:"time"` // ms
	Ticker []Tick `json:"ticker"`
}

// Tick is one entry of AllTickers. Optional fields are empty when the
// market has not traded in the last 24h.
type Tick struct {
	Symbol      string `json:"symbol"`
	SymbolName  string `json:"symbolName"`
	Buy         string `json:"buy"`
	Sell        string `json:"sell"`
	ChangeRate  string `json:"changeRate,omitempty"`
	ChangePrice string `json:"changePrice,omitempty"`
	High        string `json:"high,omitempty"`
	Low         string `json:"low,omitempty"`
	Vol         string `json:"vol"`
	VolValue    string `json:"volValue"`
	Last        string `json:"last"`
}

// SymbolInfo is one trading pair from /api/v2/symbols.
type SymbolInfo struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	BaseCurrency    string `json:"baseCurrency"`
	QuoteCurrency   string `json:"quoteCurrency"`
	FeeCurrency     string `json:"feeCurrency"`
	Market          string `json:"market"`
	BaseMinSize     string `json:"baseMinSize"`
	BaseMaxSize     string `json:"baseMaxSize"`
	QuoteMinSize    string `json:"quoteMinSize"`
	QuoteMaxSize    string `json:"quoteMaxSize"`
	BaseIncrement   string `json:"baseIncrement"`
	QuoteIncrement  string `json:"quoteIncrement"`
	PriceIncrement  string `json:"priceIncrement"`
	EnableTrading   bool   `json:"enableTrading"`
	IsMarginEnabled bool   `json:"isMarginEnabled"`
}

// OrderBook is a REST order book snapshot. Each level is [price, size].
type OrderBook struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"` // ms
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}

// ServerTime is the response of /api/v1/timestamp (ms since epoch).
type ServerTime int64

// DailyStats is the 24h summary of one symbol from /api/v1/market/stats.
type DailyStats struct {
	Time int64 `json:"time"` // ms
	Tick
}

// TradeHistory is one recent trade from /api/v1/market/histories.
type TradeHistory struct {
	Sequence string `json:"sequence"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Side     string `json:"side"`
	Time     int64  `json:"time"` // ns
}

// Candle is one kline from /api/v1/market/candles. The venue sends each
// candle as [time, open, close, high, low, volume, amount].
type Candle struct {
	Time   int64 // seconds
	Open   string
	Close  string
	High   string
	Low    string
	Volume string
	Amount string
}

// UnmarshalJSON decodes the array form.
func (c *Candle) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 7 {
		return fmt.Errorf("candle: want 7 fields, got %d", len(raw))
	}
	ts, err := strconv.ParseInt(raw[0], 10, 64)
	if err != nil {
		return fmt.Errorf("candle time %q: %w", raw[0], err)
	}
	*c = Candle{Time: ts, Open: raw[1], Close: raw[2], High: raw[3], Low: raw[4], Volume: raw[5], Amount: raw[6]}
	return nil
}

// Currency is one asset from /api/v1/currencies.
type Currency struct {
	Currency            string `json:"currency"`
	Name                string `json:"name"`
	FullName            string `json:"fullName"`
	Precision           int    `json:"precision"`
	WithdrawalMinSize   string `json:"withdrawalMinSize"`
	WithdrawalMinFee    string `json:"withdrawalMinFee"`
	IsWithdrawalEnabled bool   `json:"isWithdrawalEnabled"`
	IsDepositEnabled    bool   `json:"isDepositEnabled"`
	IsMarginEnabled     bool   `json:"isMarginEnabled"`
	IsDebitEnabled      bool   `json:"isDebitEnabled"`
}

// FiatPrices maps currency to its price in the requested fiat base.
type FiatPrices map[string]string

// MarkPrice is the margin mark price of one symbol.
type MarkPrice struct {
	Symbol      string `json:"symbol"`
	Granularity int64  `json:"granularity"`
	TimePoint   int64  `json:"timePoint"` // ms
	Value       string `json:"value"`
}
