package strategy

import "time"

// SMACrossover emits a BUY on the tick where the short mean crosses
// above the long mean, and a SELL on the reverse crossunder, using the
// tick buffer's rolling means as real-time SMA proxies.
type SMACrossover struct {
	Base
	params SMACrossoverParams
}

func NewSMACrossover(cfg Config) *SMACrossover {
	return &SMACrossover{Base: newBase(cfg), params: cfg.WithDefaults().SMACrossover}
}

func (s *SMACrossover) OnTick(symbol string, price float64, indicators Indicators) *Signal {
	now := time.Now()

	short, ok := indicators.Mean[s.params.ShortPeriod]
	if !ok {
		return nil
	}
	long, ok := indicators.Mean[s.params.LongPeriod]
	if !ok {
		return nil
	}

	shortAbove := short > long

	s.mu.Lock()
	prev := s.prevShortAbove[symbol]
	s.prevShortAbove[symbol] = boolPtr(shortAbove)
	s.mu.Unlock()

	if prev == nil {
		// Need a prior state before a transition can be detected.
		return nil
	}

	if s.inCooldown(symbol, now) {
		return nil
	}

	holding := s.HasPosition(symbol)
	switch {
	case !*prev && shortAbove && !holding:
		return s.makeSignal(Buy, symbol, "short mean crossed above long mean", price, now)
	case *prev && !shortAbove && holding:
		return s.makeSignal(Sell, symbol, "short mean crossed below long mean", price, now)
	}
	return nil
}

func (s *SMACrossover) OnBar(symbol string, bar Bar, indicators Indicators) *Signal {
	return s.OnTick(symbol, bar.Close, indicators)
}

func boolPtr(b bool) *bool { return &b }
