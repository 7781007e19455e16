package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSIStrictlyIncreasingReturns100(t *testing.T) {
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	assert.Equal(t, 100.0, CalculateRSI(prices))
}

func TestRSIStrictlyDecreasingBelow30(t *testing.T) {
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100 - float64(i)*2
	}
	assert.Less(t, CalculateRSI(prices), 30.0)
}

func TestSMACrossoverDailyBatchSeed(t *testing.T) {
	// A plateaued tail (1x5, 2x5, 3x5) has short SMA == long SMA at the
	// final bar (the crossover already happened earlier in the
	// series), so ShouldBuySMACrossover's strict `>` correctly declines
	// to emit. Use a still-rising tail instead, where the short SMA is
	// genuinely above the long SMA at evaluation time.
	closes := []float64{1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 3, 3, 4, 5, 6}
	kind, emitted := EvaluateSMACrossoverDaily(closes, 3, 5, false)
	require.True(t, emitted)
	assert.Equal(t, Buy, kind)
}

func TestBuyAndHoldAtMostOneBuyPerSymbol(t *testing.T) {
	s := NewBuyAndHold(Config{Name: "bah", Enabled: true})
	sig1 := s.OnTick("AAPL", 100, Indicators{})
	require.NotNil(t, sig1)
	assert.Equal(t, Buy, sig1.Kind)

	sig2 := s.OnTick("AAPL", 101, Indicators{})
	assert.Nil(t, sig2)
}

func TestStrategyCooldownEnforced(t *testing.T) {
	s := NewMomentum(Config{
		Name:            "mom",
		Enabled:         true,
		CooldownSeconds: 5,
		Momentum:        MomentumParams{ThresholdPct: 1, ExitThresholdPct: 1, LookbackSeconds: 5},
	})
	ind := Indicators{MomentumPct: map[int]float64{5: 2.0}}
	sig := s.OnTick("AAPL", 100, ind)
	require.NotNil(t, sig)

	// immediate re-evaluation within cooldown must not re-signal
	sig2 := s.OnTick("AAPL", 100, ind)
	assert.Nil(t, sig2)

	// simulate cooldown elapsed
	s.lastSignalTime["AAPL"] = time.Now().Add(-10 * time.Second)
	s.UpdatePosition("AAPL", 0) // not holding, so momentum buy can re-fire
	sig3 := s.OnTick("AAPL", 100, ind)
	assert.NotNil(t, sig3)
}

func TestSMACrossoverEdgeDetection(t *testing.T) {
	s := NewSMACrossover(Config{
		Name:         "sma",
		Enabled:      true,
		SMACrossover: SMACrossoverParams{ShortPeriod: 5, LongPeriod: 10},
	})

	below := Indicators{Mean: map[int]float64{5: 1, 10: 2}}
	above := Indicators{Mean: map[int]float64{5: 3, 10: 2}}

	// first call only establishes prior state
	assert.Nil(t, s.OnTick("AAPL", 1, below))
	// transition false->true should buy
	sig := s.OnTick("AAPL", 3, above)
	require.NotNil(t, sig)
	assert.Equal(t, Buy, sig.Kind)
	// no further buys while still above and holding
	s.UpdatePosition("AAPL", 10)
	assert.Nil(t, s.OnTick("AAPL", 3, above))
}
