package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// EventSink routes decoded events to the writer buffers. A nil buffer
// disables persistence for that kind.
type EventSink struct {
	tickers   *router.GrowableBuffer[TickerEvent]
	matches   *router.GrowableBuffer[MatchEvent]
	snapshots *router.GrowableBuffer[model.OrderbookSnapshot]
	logger    *slog.Logger

	routed  atomic.Int64
	ignored atomic.Int64
	invalid atomic.Int64
}

// SinkStats reports routing counters.
type SinkStats struct {
	Routed  int64
	Ignored int64
	Invalid int64
}

// NewEventSink creates a sink over the given writer buffers.
func NewEventSink(
	tickers *router.GrowableBuffer[TickerEvent],
	matches *router.GrowableBuffer[MatchEvent],
	snapshots *router.GrowableBuffer[model.OrderbookSnapshot],
	logger *slog.Logger,
) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		tickers:   tickers,
		matches:   matches,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Run routes events until the channel is closed or ctx is done.
func (s *EventSink) Run(ctx context.Context, events <-chan router.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(ev)
		}
	}
}

// Handle routes one event. It reports whether the event was persisted.
func (s *EventSink) Handle(ev router.Event) bool {
	meta := ev.EventMeta()
	var sent bool
	switch meta.Kind {
	case router.KindTicker, router.KindAllTicker:
		if msg, ok := ev.(TickerEvent); ok && s.tickers != nil {
			sent = s.tickers.Send(msg)
		}
	case router.KindMatch:
		if msg, ok := ev.(MatchEvent); ok && s.matches != nil {
			sent = s.matches.Send(msg)
		}
	case router.KindOrderBookDepth5, router.KindOrderBookDepth50:
		msg, ok := ev.(*router.Message[model.Level2Depth])
		if !ok || s.snapshots == nil {
			break
		}
		snap, err := depthToSnapshot(msg)
		if err != nil {
			s.invalid.Add(1)
			s.logger.Warn("invalid depth frame", "topic", meta.Topic, "error", err)
			return false
		}
		sent = s.snapshots.Send(snap)
	case router.KindDecodeFailure:
		s.invalid.Add(1)
		if df, ok := ev.(*router.DecodeFailure); ok {
			s.logger.Warn("undecodable frame", "topic", meta.Topic, "want", df.Want, "error", df.Err)
		}
		return false
	}

	if sent {
		s.routed.Add(1)
	} else {
		s.ignored.Add(1)
	}
	return sent
}

// HandleSnapshot queues a REST snapshot. It satisfies poller.SnapshotHandler.
func (s *EventSink) HandleSnapshot(snap model.OrderbookSnapshot) error {
	if s.snapshots == nil {
		return nil
	}
	if !s.snapshots.Send(snap) {
		return fmt.Errorf("snapshot buffer closed")
	}
	s.routed.Add(1)
	return nil
}

// Stats returns routing counters.
func (s *EventSink) Stats() SinkStats {
	return SinkStats{
		Routed:  s.routed.Load(),
		Ignored: s.ignored.Load(),
		Invalid: s.invalid.Load(),
	}
}

// depthToSnapshot converts a level2DepthN frame to a websocket snapshot.
func depthToSnapshot(msg *router.Message[model.Level2Depth]) (model.OrderbookSnapshot, error) {
	symbol := topicSymbol(msg.Meta.Topic)
	if symbol == "" {
		return model.OrderbookSnapshot{}, errNoSymbol
	}
	bids, err := model.ParseLevels(msg.Data.Bids)
	if err != nil {
		return model.OrderbookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := model.ParseLevels(msg.Data.Asks)
	if err != nil {
		return model.OrderbookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	return model.NewOrderbookSnapshot(symbol, "ws", receivedMicro(msg.Meta),
		api.MillisToMicro(msg.Data.Timestamp), 0, bids, asks), nil
}
