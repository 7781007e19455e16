package perfstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalReturnSeeds(t *testing.T) {
	assert.Equal(t, 10.0, TotalReturn(10000, 11000))
	assert.Equal(t, -10.0, TotalReturn(10000, 9000))
	assert.Equal(t, 0.0, TotalReturn(0, 1000))
}

func equityPoints(values ...float64) []EquityPoint {
	points := make([]EquityPoint, len(values))
	for i, v := range values {
		points[i] = EquityPoint{Equity: v}
	}
	return points
}

func TestMaxDrawdownSeed(t *testing.T) {
	dd := MaxDrawdown(equityPoints(10000, 11000, 9900, 10500))
	assert.InDelta(t, 0.10, dd, 1e-3)
}

func TestMaxDrawdownMultiPeakSeed(t *testing.T) {
	dd := MaxDrawdown(equityPoints(10000, 9500, 10000, 11000, 8800, 9500))
	assert.InDelta(t, 0.20, dd, 1e-3)
}

func TestMaxDrawdownNonDecreasingIsZero(t *testing.T) {
	dd := MaxDrawdown(equityPoints(10000, 10100, 10500, 11000))
	assert.Equal(t, 0.0, dd)
}

func TestMaxDrawdownEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

func TestDailyReturnsSeed(t *testing.T) {
	returns := DailyReturns(equityPoints(10000, 10100, 10000))
	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.01, returns[0], 1e-6)
	assert.InDelta(t, -0.0099, returns[1], 1e-4)
}

func TestSharpeRatioZeroForIdenticalReturns(t *testing.T) {
	returns := []float64{0.01, 0.01, 0.01, 0.01}
	assert.Equal(t, 0.0, SharpeRatio(returns, DefaultAnnualizationFactor))
}

func TestSharpeRatioZeroForEmpty(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio(nil, DefaultAnnualizationFactor))
}

func TestWinRate(t *testing.T) {
	trades := []TradeOutcome{{PnL: 10}, {PnL: -5}, {PnL: 3}, {PnL: -1}, {PnL: 0}}
	assert.InDelta(t, 0.4, WinRate(trades), 1e-9)
}

func TestWinRateEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(nil))
}
