package api

import "time"

// InstanceServer is one candidate websocket endpoint from a bullet response.
type InstanceServer struct {
	Endpoint     string `json:"endpoint"`
	Encrypt      bool   `json:"encrypt"`
	Protocol     string `json:"protocol"`
	PingInterval int64  `json:"pingInterval"` // ms
	PingTimeout  int64  `json:"pingTimeout"`  // ms
}

// Interval returns PingInterval as a duration.
func (s InstanceServer) Interval() time.Duration {
	return time.Duration(s.PingInterval) * time.Millisecond
}

// Timeout returns PingTimeout as a duration.
func (s InstanceServer) Timeout() time.Duration {
	return time.Duration(s.PingTimeout) * time.Millisecond
}

// Bullet is the result of a negotiation: a single-use token and the
// instance servers in the venue's order of preference.
type Bullet struct {
	Token           string           `json:"token"`
	InstanceServers []InstanceServer `json:"instanceServers"`
	Private         bool             `json:"-"`
}

// OrderBookDepth selects the REST order book endpoint.
type OrderBookDepth int

const (
	Depth20   OrderBookDepth = 20
	Depth100  OrderBookDepth = 100
	DepthFull OrderBookDepth = 0 // signed endpoint
)

// String returns the depth as used in configuration.
func (d OrderBookDepth) String() string {
	switch d {
	case Depth20:
		return "20"
	case Depth100:
		return "100"
	case DepthFull:
		return "full"
	default:
		return "invalid"
	}
}

// ParseOrderBookDepth parses "20", "100" or "full".
func ParseOrderBookDepth(s string) (OrderBookDepth, bool) {
	switch s {
	case "20":
		return Depth20, true
	case "100":
		return Depth100, true
	case "full":
		return DepthFull, true
	}
	return 0, false
}

// CandleInterval is a kline granularity accepted by the candles endpoint.
type CandleInterval string

const (
	Candle1Min   CandleInterval = "1min"
	Candle3Min   CandleInterval = "3min"
	Candle5Min   CandleInterval = "5min"
	Candle15Min  CandleInterval = "15min"
	Candle30Min  CandleInterval = "30min"
	Candle1Hour  CandleInterval = "1hour"
	Candle2Hour  CandleInterval = "2hour"
	Candle4Hour  CandleInterval = "4hour"
	Candle6Hour  CandleInterval = "6hour"
	Candle8Hour  CandleInterval = "8hour"
	Candle12Hour CandleInterval = "12hour"
	Candle1Day   CandleInterval = "1day"
	Candle1Week  CandleInterval = "1week"
)

// Valid reports whether i is a known interval.
func (i CandleInterval) Valid() bool {
	switch i {
	case Candle1Min, Candle3Min, Candle5Min, Candle15Min, Candle30Min,
		Candle1Hour, Candle2Hour, Candle4Hour, Candle6Hour, Candle8Hour,
		Candle12Hour, Candle1Day, Candle1Week:
		return true
	}
	return false
}

// Chain names a deposit/withdrawal chain for multi-chain currencies.
type Chain string

const (
	ChainNative Chain = "Native"
	ChainSegwit Chain = "Segwit"
	ChainOMNI   Chain = "OMNI"
	ChainERC20  Chain = "ERC20"
	ChainTRC20  Chain = "TRC20"
)
