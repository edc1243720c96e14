package model

import "github.com/shopspring/decimal"

// StopOrder is a stop order lifecycle event (subject stopOrder).
type StopOrder struct {
	Sequence  string `json:"sequence"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderID   string `json:"orderId"`
	StopEntry string `json:"stopEntry"`
	Funds     string `json:"funds"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
}

// Balances is an account balance change (subject account.balance).
type Balances struct {
	Total           string `json:"total"`
	Available       string `json:"available"`
	AvailableChange string `json:"availableChange"`
	Currency        string `json:"currency"`
	Hold            string `json:"hold"`
	HoldChange      string `json:"holdChange"`
	RelationEvent   string `json:"relationEvent"`
	RelationEventID string `json:"relationEventId"`
	Time            string `json:"time"`
	AccountID       string `json:"accountId"`
}

// DebtRatio is a margin debt ratio push (subject debt.ratio).
type DebtRatio struct {
	DebtRatio decimal.Decimal   `json:"debtRatio"`
	TotalDebt string            `json:"totalDebt"`
	DebtList  map[string]string `json:"debtList"`
	Timestamp int64             `json:"timestamp"`
}

// PositionChange is a margin position status change (subject position.status).
type PositionChange struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// MarginTradeOpen is a lending order entering the book (subject order.open).
type MarginTradeOpen struct {
	Currency     string          `json:"currency"`
	OrderID      string          `json:"orderId"`
	DailyIntRate decimal.Decimal `json:"dailyIntRate"`
	Term         int             `json:"term"`
	Size         decimal.Decimal `json:"size"`
	Side         string          `json:"side"`
	Ts           int64           `json:"ts"`
}

// MarginTradeUpdate is a lending order fill update (subject order.update).
type MarginTradeUpdate struct {
	Currency     string          `json:"currency"`
	OrderID      string          `json:"orderId"`
	DailyIntRate decimal.Decimal `json:"dailyIntRate"`
	Term         int             `json:"term"`
	Size         decimal.Decimal `json:"size"`
	LentSize     decimal.Decimal `json:"lentSize"`
	Side         string          `json:"side"`
	Ts           int64           `json:"ts"`
}

// MarginTradeDone is a lending order leaving the book (subject order.done).
type MarginTradeDone struct {
	Currency string `json:"currency"`
	OrderID  string `json:"orderId"`
	Reason   string `json:"reason"`
	Side     string `json:"side"`
	Ts       int64  `json:"ts"`
}

// TradeOrder carries the fields common to every tradeOrders/orderChange
// message. Type is one of open, match, filled, canceled, update.
type TradeOrder struct {
	Symbol     string `json:"symbol"`
	OrderType  string `json:"orderType"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	OrderID    string `json:"orderId"`
	OrderTime  int64  `json:"orderTime"`
	Size       string `json:"size"`
	FilledSize string `json:"filledSize"`
	Price      string `json:"price,omitempty"`
	ClientOid  string `json:"clientOid,omitempty"`
	RemainSize string `json:"remainSize"`
	Status     string `json:"status"`
	Ts         int64  `json:"ts"`
}

// TradeOpen is an order entering the book.
type TradeOpen struct {
	TradeOrder
}

// TradeMatch is a private fill of one of the account's orders.
type TradeMatch struct {
	TradeOrder
	Liquidity  string `json:"liquidity"`
	MatchPrice string `json:"matchPrice"`
	MatchSize  string `json:"matchSize"`
	TradeID    string `json:"tradeId"`
}

// TradeFilled is an order that has been completely filled.
type TradeFilled struct {
	TradeOrder
}

// TradeCanceled is an order that has been canceled.
type TradeCanceled struct {
	TradeOrder
}

// TradeUpdate is an order whose size was modified.
type TradeUpdate struct {
	TradeOrder
	OldSize string `json:"oldSize"`
}
