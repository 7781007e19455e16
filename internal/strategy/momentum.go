package strategy

import "time"

// Momentum emits BUY when recent momentum exceeds a threshold and
// SELL when it reverses past an exit threshold.
type Momentum struct {
	Base
	params MomentumParams
}

func NewMomentum(cfg Config) *Momentum {
	return &Momentum{Base: newBase(cfg), params: cfg.WithDefaults().Momentum}
}

func (m *Momentum) OnTick(symbol string, price float64, indicators Indicators) *Signal {
	now := time.Now()
	if m.inCooldown(symbol, now) {
		return nil
	}

	momentum, ok := indicators.MomentumPct[m.params.LookbackSeconds]
	if !ok {
		return nil
	}

	holding := m.HasPosition(symbol)
	switch {
	case momentum > m.params.ThresholdPct && !holding:
		return m.makeSignal(Buy, symbol, "momentum above threshold", price, now)
	case momentum < -m.params.ExitThresholdPct && holding:
		return m.makeSignal(Sell, symbol, "momentum reversed past exit threshold", price, now)
	}
	return nil
}

func (m *Momentum) OnBar(symbol string, bar Bar, indicators Indicators) *Signal {
	return m.OnTick(symbol, bar.Close, indicators)
}
