package strategy

import "time"

// BuyAndHold emits a single BUY per symbol the first time it is
// evaluated, then never signals again for that symbol.
type BuyAndHold struct {
	Base
}

func NewBuyAndHold(cfg Config) *BuyAndHold {
	return &BuyAndHold{Base: newBase(cfg)}
}

func (s *BuyAndHold) OnTick(symbol string, price float64, indicators Indicators) *Signal {
	now := time.Now()

	s.mu.Lock()
	if s.bought[symbol] || s.positions[symbol] > 0 {
		s.mu.Unlock()
		return nil
	}
	s.bought[symbol] = true
	s.mu.Unlock()

	return s.makeSignal(Buy, symbol, "initial buy-and-hold entry", price, now)
}

func (s *BuyAndHold) OnBar(symbol string, bar Bar, indicators Indicators) *Signal {
	return s.OnTick(symbol, bar.Close, indicators)
}
