package writer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// MatchEvent is the input of MatchWriter: a decoded match frame.
type MatchEvent = *router.Message[model.Match]

const insertTradeSQL = `
	INSERT INTO trades (trade_id, exchange_ts, received_at, symbol, sequence, side, price, size, maker_order, taker_order)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (trade_id, exchange_ts) DO NOTHING
`

var errNoTradeID = errors.New("match without trade id")

// MatchWriter consumes match events and writes them to the trades table.
// Trades are deduplicated by (trade_id, exchange_ts), so frames replayed
// after a reconnect are counted as conflicts.
type MatchWriter struct {
	*batcher[MatchEvent, model.TradeRow]
}

// NewMatchWriter creates a new MatchWriter.
func NewMatchWriter(cfg WriterConfig, input *router.GrowableBuffer[MatchEvent], db DB, m *metrics.Metrics, logger *slog.Logger) *MatchWriter {
	t := table[MatchEvent, model.TradeRow]{
		name:      "trades",
		transform: transformMatch,
		insertSQL: insertTradeSQL,
		args: func(r model.TradeRow) []any {
			return []any{r.TradeID, r.ExchangeTS, r.ReceivedAt, r.Symbol, r.Sequence, r.Side,
				r.Price, r.Size, r.MakerOrderID, r.TakerOrderID}
		},
	}
	return &MatchWriter{newBatcher(t, cfg, input, db, m, logger)}
}

func transformMatch(msg MatchEvent) (model.TradeRow, error) {
	d := msg.Data
	if d.TradeID == "" {
		return model.TradeRow{}, errNoTradeID
	}
	seq, err := parseSequence(d.Sequence)
	if err != nil {
		return model.TradeRow{}, err
	}
	var ts int64
	if d.Time != "" {
		ns, err := strconv.ParseInt(d.Time, 10, 64)
		if err != nil {
			return model.TradeRow{}, fmt.Errorf("match time %q: %w", d.Time, err)
		}
		ts = api.NanosToMicro(ns)
	}
	symbol := d.Symbol
	if symbol == "" {
		symbol = topicSymbol(msg.Meta.Topic)
	}
	return model.TradeRow{
		TradeID:      d.TradeID,
		ExchangeTS:   ts,
		ReceivedAt:   receivedMicro(msg.Meta),
		Symbol:       symbol,
		Sequence:     seq,
		Side:         d.Side,
		Price:        decimalOrZero(d.Price),
		Size:         decimalOrZero(d.Size),
		TakerOrderID: d.TakerOrderID,
		MakerOrderID: d.MakerOrderID,
	}, nil
}
