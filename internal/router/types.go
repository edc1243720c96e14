package router

import (
	"encoding/json"
	"time"
)

// Kind tags the payload type carried by an Event.
type Kind string

const (
	KindTicker           Kind = "ticker"
	KindAllTicker        Kind = "allTicker"
	KindSnapshot         Kind = "snapshot"
	KindOrderBook        Kind = "orderBook"
	KindOrderBookDepth5  Kind = "orderBookDepth5"
	KindOrderBookDepth50 Kind = "orderBookDepth50"
	KindMatch            Kind = "match"

	KindFullMatchReceived Kind = "fullMatch.received"
	KindFullMatchOpen     Kind = "fullMatch.open"
	KindFullMatchDone     Kind = "fullMatch.done"
	KindFullMatchMatch    Kind = "fullMatch.match"
	KindFullMatchChange   Kind = "fullMatch.change"

	KindLevel3Received Kind = "level3.received"
	KindLevel3Open     Kind = "level3.open"
	KindLevel3Match    Kind = "level3.match"
	KindLevel3Done     Kind = "level3.done"
	KindLevel3Change   Kind = "level3.change"

	KindIndexPrice      Kind = "indexPrice"
	KindMarketPrice     Kind = "marketPrice"
	KindOrderBookChange Kind = "orderBookChange"
	KindStopOrder       Kind = "stopOrder"
	KindBalances        Kind = "balances"
	KindDebtRatio       Kind = "debtRatio"
	KindPositionChange  Kind = "positionChange"

	KindMarginTradeOpen   Kind = "marginTrade.open"
	KindMarginTradeUpdate Kind = "marginTrade.update"
	KindMarginTradeDone   Kind = "marginTrade.done"

	KindTradeOpen     Kind = "trade.open"
	KindTradeMatch    Kind = "trade.match"
	KindTradeFilled   Kind = "trade.filled"
	KindTradeCanceled Kind = "trade.canceled"
	KindTradeUpdate   Kind = "trade.update"

	KindUnknown       Kind = "unknown"
	KindDecodeFailure Kind = "decodeFailure"
	KindBinary        Kind = "binary"
)

// Meta is carried by every event.
type Meta struct {
	Kind       Kind
	Topic      string    // topic string as received
	Subject    string    // subject as received
	ReceivedAt time.Time // zero when decoded outside a session
}

// Event is a decoded inbound frame. The concrete type is one of
// *Message[T], *Unknown, *DecodeFailure or *Binary.
type Event interface {
	EventMeta() Meta
	event()
}

// Message is a successfully decoded data frame.
type Message[T any] struct {
	Meta
	Data T
}

func (m *Message[T]) EventMeta() Meta { return m.Meta }
func (*Message[T]) event() {}

// Unknown is a data frame whose (topic, subject) pair is not in the table.
type Unknown struct {
	Meta
	Raw json.RawMessage
}

func (u *Unknown) EventMeta() Meta { return u.Meta }
func (*Unknown) event() {}

// DecodeFailure is a data frame whose payload did not match the shape
// registered for its (topic, subject) pair.
type DecodeFailure struct {
	Meta
	Want Kind // kind the payload was expected to decode as
	Raw  json.RawMessage
	Err  error
}

func (d *DecodeFailure) EventMeta() Meta { return d.Meta }
func (*DecodeFailure) event() {}

func (d *DecodeFailure) Error() string {
	return "decode " + string(d.Want) + " (" + d.Topic + " " + d.Subject + "): " + d.Err.Error()
}

func (d *DecodeFailure) Unwrap() error { return d.Err }

// Binary is a binary websocket frame passed through undecoded.
type Binary struct {
	Meta
	Data []byte
}

func (b *Binary) EventMeta() Meta { return b.Meta }
func (*Binary) event() {}

// As returns the payload of ev when ev is a *Message[T]. T is the payload
// type, e.g. As[model.Match]; use a type assertion for Unknown, Binary and
// DecodeFailure.
func As[T any](ev Event) (T, bool) {
	if m, ok := ev.(*Message[T]); ok {
		return m.Data, true
	}
	var zero T
	return zero, false
}
