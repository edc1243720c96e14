package writer

import (
	"errors"
	"log/slog"

	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

const insertSnapshotSQL = `
	INSERT INTO orderbook_snapshots (snapshot_ts, exchange_ts, symbol, source, sequence, bids, asks, best_bid, best_ask, spread)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (symbol, snapshot_ts, source) DO NOTHING
`

var errEmptySnapshot = errors.New("snapshot without symbol")

// snapshotRow is an orderbook_snapshots row with levels encoded as JSONB.
type snapshotRow struct {
	model.OrderbookSnapshot
	BidsJSON []byte
	AsksJSON []byte
}

// SnapshotWriter writes order book snapshots from the REST poller and the
// depth-N websocket topics to orderbook_snapshots.
type SnapshotWriter struct {
	*batcher[model.OrderbookSnapshot, snapshotRow]
}

// NewSnapshotWriter creates a new SnapshotWriter.
func NewSnapshotWriter(cfg WriterConfig, input *router.GrowableBuffer[model.OrderbookSnapshot], db DB, m *metrics.Metrics, logger *slog.Logger) *SnapshotWriter {
	t := table[model.OrderbookSnapshot, snapshotRow]{
		name:      "orderbook_snapshots",
		transform: transformSnapshot,
		insertSQL: insertSnapshotSQL,
		args: func(r snapshotRow) []any {
			return []any{r.SnapshotTS, r.ExchangeTS, r.Symbol, r.Source, r.Sequence,
				r.BidsJSON, r.AsksJSON, r.BestBid, r.BestAsk, r.Spread}
		},
	}
	return &SnapshotWriter{newBatcher(t, cfg, input, db, m, logger)}
}

func transformSnapshot(s model.OrderbookSnapshot) (snapshotRow, error) {
	if s.Symbol == "" {
		return snapshotRow{}, errEmptySnapshot
	}
	return snapshotRow{
		OrderbookSnapshot: s,
		BidsJSON:          levelsToJSONB(s.Bids),
		AsksJSON:          levelsToJSONB(s.Asks),
	}, nil
}
