package writer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// TickerEvent is the input of TickerWriter: a decoded ticker or allTicker frame.
type TickerEvent = *router.Message[model.SymbolTicker]

const insertTickerSQL = `
	INSERT INTO tickers (exchange_ts, received_at, symbol, sequence, price, size, best_bid, best_bid_size, best_ask, best_ask_size)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (symbol, received_at, sequence) DO NOTHING
`

var errNoSymbol = errors.New("no symbol in topic")

// TickerWriter consumes ticker events and writes them to the tickers table.
type TickerWriter struct {
	*batcher[TickerEvent, model.TickerRow]
}

// NewTickerWriter creates a new TickerWriter.
func NewTickerWriter(cfg WriterConfig, input *router.GrowableBuffer[TickerEvent], db DB, m *metrics.Metrics, logger *slog.Logger) *TickerWriter {
	t := table[TickerEvent, model.TickerRow]{
		name:      "tickers",
		transform: transformTicker,
		insertSQL: insertTickerSQL,
		args: func(r model.TickerRow) []any {
			return []any{r.ExchangeTS, r.ReceivedAt, r.Symbol, r.Sequence, r.Price, r.Size,
				r.BestBid, r.BestBidSize, r.BestAsk, r.BestAskSize}
		},
	}
	return &TickerWriter{newBatcher(t, cfg, input, db, m, logger)}
}

func transformTicker(msg TickerEvent) (model.TickerRow, error) {
	symbol := topicSymbol(msg.Meta.Topic)
	if symbol == "" {
		return model.TickerRow{}, fmt.Errorf("ticker %q: %w", msg.Meta.Topic, errNoSymbol)
	}
	seq, err := parseSequence(msg.Data.Sequence)
	if err != nil {
		return model.TickerRow{}, err
	}
	d := msg.Data
	return model.TickerRow{
		ExchangeTS:  api.MillisToMicro(d.Time),
		ReceivedAt:  receivedMicro(msg.Meta),
		Symbol:      symbol,
		Sequence:    seq,
		Price:       decimalOrZero(d.Price),
		Size:        decimalOrZero(d.Size),
		BestBid:     decimalOrZero(d.BestBid),
		BestBidSize: decimalOrZero(d.BestBidSize),
		BestAsk:     decimalOrZero(d.BestAsk),
		BestAskSize: decimalOrZero(d.BestAskSize),
	}, nil
}

// topicSymbol returns the symbol of a single-symbol topic such as
// "/market/ticker:BTC-USDT". Multi-symbol and "all" topics yield "".
func topicSymbol(topic string) string {
	i := strings.LastIndexByte(topic, ':')
	if i < 0 {
		return ""
	}
	sym := topic[i+1:]
	if sym == "" || sym == "all" || strings.Contains(sym, ",") {
		return ""
	}
	return sym
}

// parseSequence parses a venue sequence; empty means 0.
func parseSequence(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sequence %q: %w", s, err)
	}
	return n, nil
}

func receivedMicro(meta router.Meta) int64 {
	if meta.ReceivedAt.IsZero() {
		return api.NowMicro()
	}
	return meta.ReceivedAt.UnixMicro()
}
