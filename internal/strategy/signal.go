package strategy

import "time"

// Kind is a signal's intended action.
type Kind string

const (
	Buy  Kind = "buy"
	Sell Kind = "sell"
)

// Signal is a strategy's transient intent to buy or sell a symbol.
type Signal struct {
	Kind      Kind
	Symbol    string
	Strategy  string
	Reason    string
	Price     float64
	Timestamp time.Time
}

// Bar is an OHLCV aggregate, used for both 1-minute real-time bars and
// 1-day scheduled-engine bars.
type Bar struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}
