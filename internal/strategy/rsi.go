package strategy

import "time"

// RSI maintains a ring of the last period+1 prices per symbol and
// computes a Wilder-style-simple (non-exponential) relative strength
// index from it.
type RSI struct {
	Base
	params RSIParams
}

func NewRSI(cfg Config) *RSI {
	return &RSI{Base: newBase(cfg), params: cfg.WithDefaults().RSI}
}

func (s *RSI) OnTick(symbol string, price float64, indicators Indicators) *Signal {
	now := time.Now()

	s.mu.Lock()
	ring := append(s.priceRing[symbol], price)
	if len(ring) > s.params.Period+1 {
		ring = ring[len(ring)-(s.params.Period+1):]
	}
	s.priceRing[symbol] = ring
	s.mu.Unlock()

	if len(ring) < s.params.Period+1 {
		return nil
	}

	if s.inCooldown(symbol, now) {
		return nil
	}

	rsi := CalculateRSI(ring)
	holding := s.HasPosition(symbol)

	switch {
	case rsi < s.params.Oversold && !holding:
		return s.makeSignal(Buy, symbol, "RSI below oversold threshold", price, now)
	case rsi > s.params.Overbought && holding:
		return s.makeSignal(Sell, symbol, "RSI above overbought threshold", price, now)
	}
	return nil
}

func (s *RSI) OnBar(symbol string, bar Bar, indicators Indicators) *Signal {
	return s.OnTick(symbol, bar.Close, indicators)
}

// CalculateRSI computes the simple (non-exponential) RSI over a price
// ring of length period+1: average gain and average loss are simple
// means over the period consecutive differences.
func CalculateRSI(prices []float64) float64 {
	if len(prices) < 2 {
		return 50
	}
	var gainSum, lossSum float64
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	n := float64(len(prices) - 1)
	avgGain := gainSum / n
	avgLoss := lossSum / n

	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
