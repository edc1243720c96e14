package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kucoin-data/internal/model"
)

// MillisToMicro converts venue milliseconds to microseconds since epoch.
func MillisToMicro(ms int64) int64 {
	return ms * 1000
}

// NanosToMicro converts venue nanoseconds to microseconds since epoch.
func NanosToMicro(ns int64) int64 {
	return ns / 1000
}

// NowMicro returns the current time in microseconds since epoch.
func NowMicro() int64 {
	return time.Now().UnixMicro()
}

// decimalOrZero parses s, returning zero for empty or invalid input.
func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SymbolToModel converts a symbol listing to model.Symbol.
func SymbolToModel(s model.SymbolInfo, updatedAt int64) model.Symbol {
	return model.Symbol{
		Symbol:         s.Symbol,
		Name:           s.Name,
		BaseCurrency:   s.BaseCurrency,
		QuoteCurrency:  s.QuoteCurrency,
		Market:         s.Market,
		EnableTrading:  s.EnableTrading,
		MarginEnabled:  s.IsMarginEnabled,
		PriceIncrement: decimalOrZero(s.PriceIncrement),
		BaseIncrement:  decimalOrZero(s.BaseIncrement),
		UpdatedAt:      updatedAt,
	}
}

// OrderBookToSnapshot converts a REST order book to a snapshot row.
func OrderBookToSnapshot(symbol string, ob *model.OrderBook, snapshotTS int64) (model.OrderbookSnapshot, error) {
	bids, err := model.ParseLevels(ob.Bids)
	if err != nil {
		return model.OrderbookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := model.ParseLevels(ob.Asks)
	if err != nil {
		return model.OrderbookSnapshot{}, fmt.Errorf("asks: %w", err)
	}

	var seq int64
	if ob.Sequence != "" {
		if seq, err = strconv.ParseInt(ob.Sequence, 10, 64); err != nil {
			return model.OrderbookSnapshot{}, fmt.Errorf("sequence %q: %w", ob.Sequence, err)
		}
	}

	return model.NewOrderbookSnapshot(symbol, "rest", snapshotTS, MillisToMicro(ob.Time), seq, bids, asks), nil
}
