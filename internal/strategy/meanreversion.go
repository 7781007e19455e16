package strategy

import (
	"math"
	"time"
)

// MeanReversion emits BUY when price is far below a rolling mean
// (z-score) and SELL on reversion or a breakout past the same
// threshold on the other side.
type MeanReversion struct {
	Base
	params MeanReversionParams
}

func NewMeanReversion(cfg Config) *MeanReversion {
	return &MeanReversion{Base: newBase(cfg), params: cfg.WithDefaults().MeanReversion}
}

func (s *MeanReversion) OnTick(symbol string, price float64, indicators Indicators) *Signal {
	now := time.Now()
	if s.inCooldown(symbol, now) {
		return nil
	}

	mean, ok := indicators.Mean[s.params.WindowSeconds]
	if !ok {
		return nil
	}
	std, ok := indicators.Std[s.params.WindowSeconds]
	if !ok || std == 0 {
		return nil
	}

	z := (price - mean) / std
	holding := s.HasPosition(symbol)

	switch {
	case z < -s.params.StdThreshold && !holding:
		return s.makeSignal(Buy, symbol, "price below lower z-score threshold", price, now)
	case (math.Abs(z) < s.params.ExitThreshold || z > s.params.StdThreshold) && holding:
		return s.makeSignal(Sell, symbol, "price reverted or broke out above threshold", price, now)
	}
	return nil
}

func (s *MeanReversion) OnBar(symbol string, bar Bar, indicators Indicators) *Signal {
	return s.OnTick(symbol, bar.Close, indicators)
}
