package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTopic is returned for topic strings or parameter lists that do
// not describe a known channel.
var ErrInvalidTopic = errors.New("invalid topic")

// TopicKind identifies one of the subscribable channels.
type TopicKind int

const (
	TopicTicker TopicKind = iota + 1
	TopicAllTicker
	TopicSnapshot
	TopicOrderBook
	TopicOrderBookDepth5
	TopicOrderBookDepth50
	TopicMatch
	TopicFullMatch
	TopicLevel3Public
	TopicLevel3Private
	TopicIndexPrice
	TopicMarketPrice
	TopicOrderBookChange
	TopicStopOrder
	TopicBalances
	TopicDebtRatio
	TopicPositionChange
	TopicMarginTradeOrder
	TopicTradeOrders
)

type arity int

const (
	noParams  arity = iota // channel takes no parameter
	oneParam               // exactly one symbol or currency
	manyParam              // one or more symbols or currencies
)

type topicDef struct {
	name    string
	path    string // venue subscribe path without parameters
	arity   arity
	private bool
}

var topicDefs = map[TopicKind]topicDef{
	TopicTicker:           {"ticker", "/market/ticker", manyParam, false},
	TopicAllTicker:        {"allTicker", "/market/ticker", noParams, false},
	TopicSnapshot:         {"snapshot", "/market/snapshot", oneParam, false},
	TopicOrderBook:        {"orderBook", "/market/level2", manyParam, false},
	TopicOrderBookDepth5:  {"orderBookDepth5", "/spotMarket/level2Depth5", manyParam, false},
	TopicOrderBookDepth50: {"orderBookDepth50", "/spotMarket/level2Depth50", manyParam, false},
	TopicMatch:            {"match", "/market/match", manyParam, false},
	TopicFullMatch:        {"fullMatch", "/spotMarket/level3", manyParam, false},
	TopicLevel3Public:     {"level3public", "/market/level3", manyParam, false},
	TopicLevel3Private:    {"level3private", "/market/level3", manyParam, true},
	TopicIndexPrice:       {"indexPrice", "/indicator/index", manyParam, false},
	TopicMarketPrice:      {"marketPrice", "/indicator/markPrice", manyParam, false},
	TopicOrderBookChange:  {"orderBookChange", "/margin/fundingBook", manyParam, false},
	TopicStopOrder:        {"stopOrder", "/market/level3", manyParam, true},
	TopicBalances:         {"balances", "/account/balance", noParams, true},
	TopicDebtRatio:        {"debtRatio", "/margin/position", noParams, true},
	TopicPositionChange:   {"positionChange", "/margin/position", noParams, true},
	TopicMarginTradeOrder: {"marginTradeOrder", "/margin/loan", oneParam, true},
	TopicTradeOrders:      {"tradeOrders", "/spotMarket/tradeOrders", noParams, true},
}

// topicsByName is the inverse of topicDefs, keyed by canonical name.
var topicsByName = func() map[string]TopicKind {
	m := make(map[string]TopicKind, len(topicDefs))
	for kind, def := range topicDefs {
		m[def.name] = kind
	}
	return m
}()

// String returns the canonical topic name.
func (k TopicKind) String() string {
	if def, ok := topicDefs[k]; ok {
		return def.name
	}
	return fmt.Sprintf("TopicKind(%d)", int(k))
}

// Topic is a subscribable channel plus its symbol or currency parameters.
type Topic struct {
	Kind   TopicKind
	Params []string
}

// NewTopic returns a topic of the given kind. It does not validate.
func NewTopic(kind TopicKind, params ...string) Topic {
	return Topic{Kind: kind, Params: params}
}

// Name returns the bare topic name, e.g. "ticker".
func (t Topic) Name() string { return t.Kind.String() }

// String returns the subscribe string: the name, followed by ":" and the
// comma-joined parameters when there are any ("ticker:BTC-USDT,ETH-USDT").
func (t Topic) String() string {
	if len(t.Params) == 0 {
		return t.Name()
	}
	return t.Name() + ":" + strings.Join(t.Params, ",")
}

// Path returns the venue's path-style subscribe string
// ("/market/ticker:BTC-USDT"). AllTicker maps to "/market/ticker:all".
func (t Topic) Path() string {
	def := topicDefs[t.Kind]
	if t.Kind == TopicAllTicker {
		return def.path + ":all"
	}
	if len(t.Params) == 0 {
		return def.path
	}
	return def.path + ":" + strings.Join(t.Params, ",")
}

// Private reports whether the channel is only served on a private connection.
func (t Topic) Private() bool { return topicDefs[t.Kind].private }

// Validate checks the kind and the parameter count.
func (t Topic) Validate() error {
	def, ok := topicDefs[t.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidTopic, int(t.Kind))
	}
	for _, p := range t.Params {
		if p == "" || strings.ContainsAny(p, ",: ") {
			return fmt.Errorf("%w: %s: bad parameter %q", ErrInvalidTopic, def.name, p)
		}
	}
	switch def.arity {
	case noParams:
		if len(t.Params) != 0 {
			return fmt.Errorf("%w: %s takes no parameters", ErrInvalidTopic, def.name)
		}
	case oneParam:
		if len(t.Params) != 1 {
			return fmt.Errorf("%w: %s takes exactly one parameter", ErrInvalidTopic, def.name)
		}
	case manyParam:
		if len(t.Params) == 0 {
			return fmt.Errorf("%w: %s needs at least one parameter", ErrInvalidTopic, def.name)
		}
	}
	return nil
}

// Equal reports whether two topics name the same channel and parameters.
func (t Topic) Equal(o Topic) bool { return t.String() == o.String() }

// ParseTopic parses the "name[:p1,p2]" form produced by Topic.String.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	name, params, hasParams := strings.Cut(s, ":")
	kind, ok := topicsByName[name]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}

	t := Topic{Kind: kind}
	if hasParams {
		for _, p := range strings.Split(params, ",") {
			t.Params = append(t.Params, strings.TrimSpace(p))
		}
	}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}
