package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Time-Series Rows
// -----------------------------------------------------------------------------

// TickerRow is a best bid/ask observation as persisted.
type TickerRow struct {
	ExchangeTS  int64           // Venue timestamp (µs since epoch), 0 if not provided
	ReceivedAt  int64           // Gatherer receive timestamp (µs since epoch)
	Symbol      string          // Trading pair (e.g., "BTC-USDT")
	Sequence    int64           // Venue sequence number
	Price       decimal.Decimal // Last trade price
	Size        decimal.Decimal // Last trade size
	BestBid     decimal.Decimal
	BestBidSize decimal.Decimal
	BestAsk     decimal.Decimal
	BestAskSize decimal.Decimal
}

// TradeRow is an executed public trade as persisted.
type TradeRow struct {
	TradeID      string          // Primary key (from the venue)
	ExchangeTS   int64           // Venue timestamp (µs since epoch)
	ReceivedAt   int64           // Gatherer receive timestamp (µs since epoch)
	Symbol       string          // Trading pair
	Sequence     int64           // Venue sequence number
	Side         string          // Taker side: "buy" or "sell"
	Price        decimal.Decimal // Trade price
	Size         decimal.Decimal // Trade size
	TakerOrderID string
	MakerOrderID string
}

// PriceLevel is a single price level in an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderbookSnapshot is a full or top-N order book state at a point in time.
type OrderbookSnapshot struct {
	SnapshotTS int64        // Snapshot timestamp (µs since epoch)
	ExchangeTS int64        // Venue timestamp (µs since epoch), 0 if not provided
	Symbol     string       // Trading pair
	Source     string       // "ws" or "rest"
	Sequence   int64        // Venue sequence number, 0 if not provided
	Bids       []PriceLevel // Best first
	Asks       []PriceLevel // Best first
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	Spread     decimal.Decimal // BestAsk - BestBid, zero when a side is empty
}

// ParseLevels converts venue [price, size, ...] string tuples to price
// levels. Extra tuple elements are ignored.
func ParseLevels(raw [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(raw))
	for i, lvl := range raw {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("level %d: want [price, size], got %d elements", i, len(lvl))
		}
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price %q: %w", i, lvl[0], err)
		}
		size, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return nil, fmt.Errorf("level %d size %q: %w", i, lvl[1], err)
		}
		levels = append(levels, PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// NewOrderbookSnapshot builds a snapshot and fills in the best prices and spread.
func NewOrderbookSnapshot(symbol, source string, snapshotTS, exchangeTS, sequence int64, bids, asks []PriceLevel) OrderbookSnapshot {
	s := OrderbookSnapshot{
		SnapshotTS: snapshotTS,
		ExchangeTS: exchangeTS,
		Symbol:     symbol,
		Source:     source,
		Sequence:   sequence,
		Bids:       bids,
		Asks:       asks,
	}
	if len(bids) > 0 {
		s.BestBid = bids[0].Price
	}
	if len(asks) > 0 {
		s.BestAsk = asks[0].Price
	}
	if len(bids) > 0 && len(asks) > 0 {
		s.Spread = s.BestAsk.Sub(s.BestBid)
	}
	return s
}

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Symbol is a trading pair as tracked by the registry.
type Symbol struct {
	Symbol         string // Primary key (e.g., "BTC-USDT")
	Name           string
	BaseCurrency   string
	QuoteCurrency  string
	Market         string // e.g., "USDS", "BTC"
	EnableTrading  bool
	MarginEnabled  bool
	PriceIncrement decimal.Decimal
	BaseIncrement  decimal.Decimal
	UpdatedAt      int64 // Last sync (µs since epoch)
}
