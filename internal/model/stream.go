package model

import "github.com/shopspring/decimal"

// SymbolTicker is the payload of ticker and allTicker frames (subject trade.ticker).
type SymbolTicker struct {
	Sequence    string `json:"sequence"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	BestAsk     string `json:"bestAsk"`
	BestAskSize string `json:"bestAskSize"`
	BestBid     string `json:"bestBid"`
	BestBidSize string `json:"bestBidSize"`
	Time        int64  `json:"time,omitempty"` // ms
}

// Snapshot is the payload of snapshot frames (subject trade.snapshot).
type Snapshot struct {
	Sequence int64        `json:"sequence"`
	Data     SnapshotData `json:"data"`
}

// SnapshotData is the 24h market summary carried by a Snapshot.
type SnapshotData struct {
	Trading         bool                `json:"trading"`
	Symbol          string              `json:"symbol"`
	Buy             decimal.Decimal     `json:"buy"`
	Sell            decimal.Decimal     `json:"sell"`
	Sort            int                 `json:"sort"`
	VolValue        decimal.Decimal     `json:"volValue"`
	BaseCurrency    string              `json:"baseCurrency"`
	Market          string              `json:"market"`
	QuoteCurrency   string              `json:"quoteCurrency"`
	SymbolCode      string              `json:"symbolCode"`
	Datetime        int64               `json:"datetime"` // ms
	High            decimal.NullDecimal `json:"high"`
	Vol             decimal.Decimal     `json:"vol"`
	Low             decimal.NullDecimal `json:"low"`
	ChangePrice     decimal.NullDecimal `json:"changePrice"`
	ChangeRate      decimal.Decimal     `json:"changeRate"`
	LastTradedPrice decimal.Decimal     `json:"lastTradedPrice"`
	Board           int                 `json:"board"`
	Mark            int                 `json:"mark"`
}

// Level2 is an incremental order book update (subject trade.l2update).
// Each change is [price, size, sequence]; size "0" removes the level.
type Level2 struct {
	SequenceStart int64         `json:"sequenceStart"`
	SequenceEnd   int64         `json:"sequenceEnd"`
	Symbol        string        `json:"symbol"`
	Changes       Level2Changes `json:"changes"`
}

// Level2Changes holds the per-side updates of a Level2 frame.
type Level2Changes struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
}

// Level2Depth is a top-N order book snapshot (subject level2).
// Each level is [price, size].
type Level2Depth struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Timestamp int64      `json:"timestamp"` // ms
}

// Match is an executed trade on the match topic (subject trade.l3match).
type Match struct {
	Sequence     string `json:"sequence"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Size         string `json:"size"`
	Price        string `json:"price"`
	TakerOrderID string `json:"takerOrderId"`
	MakerOrderID string `json:"makerOrderId"`
	TradeID      string `json:"tradeId"`
	Time         string `json:"time"` // ns, as a string
	Type         string `json:"type"`
}

// Level3Received is a level3 "received" message.
type Level3Received struct {
	Sequence  string `json:"sequence"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderID   string `json:"orderId"`
	Price     string `json:"price,omitempty"`
	Time      string `json:"time"`
	ClientOid string `json:"clientOid,omitempty"`
	Type      string `json:"type"`
	OrderType string `json:"orderType"`
}

// Level3Open is a level3 "open" message.
type Level3Open struct {
	Sequence string `json:"sequence"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Size     string `json:"size"`
	OrderID  string `json:"orderId"`
	Price    string `json:"price"`
	Time     string `json:"time"`
	Type     string `json:"type"`
}

// Level3Done is a level3 "done" message.
type Level3Done struct {
	Sequence string `json:"sequence"`
	Symbol   string `json:"symbol"`
	Reason   string `json:"reason"`
	Side     string `json:"side"`
	OrderID  string `json:"orderId"`
	Time     string `json:"time"`
	Type     string `json:"type"`
	Size     string `json:"size,omitempty"`
}

// Level3Match is a level3 "match" message.
type Level3Match struct {
	Sequence     string `json:"sequence"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Size         string `json:"size"`
	Price        string `json:"price"`
	TakerOrderID string `json:"takerOrderId"`
	MakerOrderID string `json:"makerOrderId"`
	TradeID      string `json:"tradeId"`
	Time         string `json:"time"`
	Type         string `json:"type"`
}

// Level3Change is a level3 "change" message.
type Level3Change struct {
	Sequence string `json:"sequence"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	OrderID  string `json:"orderId"`
	Price    string `json:"price"`
	NewSize  string `json:"newSize"`
	OldSize  string `json:"oldSize"`
	Time     string `json:"time"`
	Type     string `json:"type"`
}

// FullMatchReceived is a full-match "received" message.
type FullMatchReceived struct {
	Sequence  int64  `json:"sequence"`
	Symbol    string `json:"symbol"`
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid,omitempty"`
	Ts        int64  `json:"ts"` // ns
}

// FullMatchOpen is a full-match "open" message.
type FullMatchOpen struct {
	Sequence  int64  `json:"sequence"`
	Symbol    string `json:"symbol"`
	OrderID   string `json:"orderId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	OrderTime int64  `json:"orderTime"`
	Ts        int64  `json:"ts"`
}

// FullMatchDone is a full-match "done" message.
type FullMatchDone struct {
	Sequence int64  `json:"sequence"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
	Reason   string `json:"reason"`
	Ts       int64  `json:"ts"`
}

// FullMatchMatch is a full-match "match" message.
type FullMatchMatch struct {
	Sequence     int64  `json:"sequence"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	RemainSize   string `json:"remainSize"`
	TakerOrderID string `json:"takerOrderId"`
	MakerOrderID string `json:"makerOrderId"`
	TradeID      string `json:"tradeId"`
	Ts           int64  `json:"ts"`
}

// FullMatchChange is a full-match "change" message.
type FullMatchChange struct {
	Sequence int64  `json:"sequence"`
	Symbol   string `json:"symbol"`
	Size     string `json:"size"`
	OrderID  string `json:"orderId"`
	Ts       int64  `json:"ts"`
}

// IndexPrice is an index price tick (subject tick).
type IndexPrice struct {
	Symbol      string          `json:"symbol"`
	Granularity int             `json:"granularity"`
	Timestamp   int64           `json:"timestamp"`
	Value       decimal.Decimal `json:"value"`
}

// MarketPrice is a mark price tick (subject tick).
type MarketPrice struct {
	Symbol      string          `json:"symbol"`
	Granularity int             `json:"granularity"`
	Timestamp   int64           `json:"timestamp"`
	Value       decimal.Decimal `json:"value"`
}

// BookChange is a margin funding book update (subject funding.update).
type BookChange struct {
	Sequence      int64           `json:"sequence"`
	Currency      string          `json:"currency"`
	DailyIntRate  decimal.Decimal `json:"dailyIntRate"`
	AnnualIntRate decimal.Decimal `json:"annualIntRate"`
	Term          int             `json:"term"`
	Size          decimal.Decimal `json:"size"`
	Side          string          `json:"side"`
	Ts            int64           `json:"ts"`
}
