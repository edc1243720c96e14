package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/kucoin-data/internal/model"
)

// decodeFunc decodes one payload. meta arrives with Topic, Subject and
// ReceivedAt set.
type decodeFunc func(meta Meta, data json.RawMessage) Event

type routeKey struct {
	name    string
	subject string
}

// routes is the closed (name, subject) table. Built once at init, read-only after.
var routes = buildRoutes()

// typed returns a decoder for payload type T tagged with kind.
func typed[T any](kind Kind) decodeFunc {
	return func(meta Meta, data json.RawMessage) Event {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			meta.Kind = KindDecodeFailure
			return &DecodeFailure{Meta: meta, Want: kind, Raw: data, Err: err}
		}
		meta.Kind = kind
		return &Message[T]{Meta: meta, Data: v}
	}
}

func buildRoutes() map[routeKey]decodeFunc {
	r := make(map[routeKey]decodeFunc)
	add := func(names []string, subject string, fn decodeFunc) {
		for _, n := range names {
			k := routeKey{n, subject}
			if _, dup := r[k]; dup {
				panic(fmt.Sprintf("router: duplicate route %s/%s", n, subject))
			}
			r[k] = fn
		}
	}
	names := func(n ...string) []string { return n }

	add(names("ticker"), "trade.ticker", typed[model.SymbolTicker](KindTicker))
	add(names("allTicker"), "trade.ticker", typed[model.SymbolTicker](KindAllTicker))
	add(names("snapshot"), "trade.snapshot", typed[model.Snapshot](KindSnapshot))
	add(names("orderBook", "level2"), "trade.l2update", typed[model.Level2](KindOrderBook))
	add(names("orderBookDepth5", "level2Depth5"), "level2", typed[model.Level2Depth](KindOrderBookDepth5))
	add(names("orderBookDepth50", "level2Depth50"), "level2", typed[model.Level2Depth](KindOrderBookDepth50))
	add(names("match"), "trade.l3match", typed[model.Match](KindMatch))

	// Full match is served on the v2 level3 path with bare subjects.
	fullMatch := names("fullMatch", "level3")
	add(fullMatch, "received", typed[model.FullMatchReceived](KindFullMatchReceived))
	add(fullMatch, "open", typed[model.FullMatchOpen](KindFullMatchOpen))
	add(fullMatch, "done", typed[model.FullMatchDone](KindFullMatchDone))
	add(fullMatch, "match", typed[model.FullMatchMatch](KindFullMatchMatch))
	add(fullMatch, "change", typed[model.FullMatchChange](KindFullMatchChange))

	level3 := names("level3public", "level3private", "level3")
	add(level3, "trade.l3received", typed[model.Level3Received](KindLevel3Received))
	add(level3, "trade.l3open", typed[model.Level3Open](KindLevel3Open))
	add(level3, "trade.l3match", typed[model.Level3Match](KindLevel3Match))
	add(level3, "trade.l3done", typed[model.Level3Done](KindLevel3Done))
	add(level3, "trade.l3change", typed[model.Level3Change](KindLevel3Change))

	add(names("indexPrice", "index"), "tick", typed[model.IndexPrice](KindIndexPrice))
	add(names("marketPrice", "markPrice"), "tick", typed[model.MarketPrice](KindMarketPrice))
	add(names("orderBookChange", "fundingBook"), "funding.update", typed[model.BookChange](KindOrderBookChange))
	add(names("stopOrder", "advancedOrders", "level3"), "stopOrder", typed[model.StopOrder](KindStopOrder))
	add(names("balances", "balance"), "account.balance", typed[model.Balances](KindBalances))
	add(names("debtRatio", "position"), "debt.ratio", typed[model.DebtRatio](KindDebtRatio))
	add(names("positionChange", "position"), "position.status", typed[model.PositionChange](KindPositionChange))

	loan := names("marginTradeOrder", "loan")
	add(loan, "order.open", typed[model.MarginTradeOpen](KindMarginTradeOpen))
	add(loan, "order.update", typed[model.MarginTradeUpdate](KindMarginTradeUpdate))
	add(loan, "order.done", typed[model.MarginTradeDone](KindMarginTradeDone))

	add(names("tradeOrders"), "orderChange", decodeOrderChange)
	return r
}

// orderChanges dispatches tradeOrders frames on the payload's "type" field.
var orderChanges = map[string]decodeFunc{
	"open":     typed[model.TradeOpen](KindTradeOpen),
	"match":    typed[model.TradeMatch](KindTradeMatch),
	"filled":   typed[model.TradeFilled](KindTradeFilled),
	"canceled": typed[model.TradeCanceled](KindTradeCanceled),
	"update":   typed[model.TradeUpdate](KindTradeUpdate),
}

func decodeOrderChange(meta Meta, data json.RawMessage) Event {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		meta.Kind = KindDecodeFailure
		return &DecodeFailure{Meta: meta, Want: KindTradeOpen, Raw: data, Err: err}
	}
	fn, ok := orderChanges[head.Type]
	if !ok {
		meta.Kind = KindUnknown
		return &Unknown{Meta: meta, Raw: data}
	}
	return fn(meta, data)
}

// Decode maps one data frame to an event. It never returns nil.
func Decode(topic, subject string, data json.RawMessage) Event {
	return DecodeAt(topic, subject, data, time.Time{})
}

// DecodeAt is Decode with a receive timestamp recorded in the event's Meta.
func DecodeAt(topic, subject string, data json.RawMessage, receivedAt time.Time) Event {
	meta := Meta{Topic: topic, Subject: subject, ReceivedAt: receivedAt}
	if fn, ok := routes[routeKey{TopicName(topic), subject}]; ok {
		return fn(meta, data)
	}
	meta.Kind = KindUnknown
	return &Unknown{Meta: meta, Raw: data}
}

// Known reports whether (topic, subject) is in the routing table.
func Known(topic, subject string) bool {
	_, ok := routes[routeKey{TopicName(topic), subject}]
	return ok
}

// TopicName reduces a received topic string to its bare name:
// "/market/ticker:BTC-USDT" and "ticker:BTC-USDT" both become "ticker".
// Only a leading "/segment/" is treated as a path prefix, so parameters may
// be colon- or slash-joined ("ticker/BTC-USDT"). The venue's all-markets
// ticker path "/market/ticker:all" becomes "allTicker".
func TopicName(topic string) string {
	rest := topic
	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest[1:], '/'); i >= 0 {
			rest = rest[i+2:]
		} else {
			rest = rest[1:]
		}
	}
	end := strings.IndexAny(rest, ":/")
	if end < 0 {
		return rest
	}
	name, params := rest[:end], rest[end+1:]
	if name == "ticker" && params == "all" {
		return "allTicker"
	}
	return name
}
