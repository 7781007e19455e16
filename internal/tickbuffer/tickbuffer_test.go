package tickbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIndicatorsEmptyUnderTwoTicks(t *testing.T) {
	b := New(120)
	b.Add("AAPL", 100, 10, 1000)
	ind := b.GetIndicators("AAPL")
	assert.True(t, ind.Empty())
}

func TestGetIndicatorsTickCountAndLastPrice(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1010 }
	b.Add("AAPL", 100, 10, 1000)
	b.Add("AAPL", 101, 10, 1001)
	ind := b.GetIndicators("AAPL")
	require.False(t, ind.Empty())
	assert.Equal(t, 2, ind.TickCount)
	assert.Equal(t, 101.0, ind.LastPrice)
}

func TestPruneByAge(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1000 }
	b.Add("AAPL", 100, 10, 700) // 300s old at now=1000, older than 120s max age
	b.Add("AAPL", 101, 10, 950)
	ind := b.GetIndicators("AAPL")
	// only one tick survives pruning -> empty result
	assert.True(t, ind.Empty())
}

func TestMomentumWindow(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1010 }
	b.Add("AAPL", 100, 10, 1006) // within 5s, 10s windows
	b.Add("AAPL", 110, 10, 1009)
	ind := b.GetIndicators("AAPL")
	mom5, ok := ind.MomentumPct[5]
	require.True(t, ok)
	assert.InDelta(t, 10.0, mom5, 1e-9) // 100*(110-100)/100
}

func TestMeanStdRequiresFivePrices(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1010 }
	for i := 0; i < 4; i++ {
		b.Add("AAPL", float64(100+i), 10, 1000+float64(i))
	}
	ind := b.GetIndicators("AAPL")
	_, ok := ind.Mean[30]
	assert.False(t, ok)

	b.Add("AAPL", 104, 10, 1004)
	ind = b.GetIndicators("AAPL")
	mean, ok := ind.Mean[30]
	require.True(t, ok)
	assert.InDelta(t, 102.0, mean, 1e-9)
	std, ok := ind.Std[30]
	require.True(t, ok)
	assert.Greater(t, std, 0.0)
}

func TestVWAPOmittedWhenZeroVolume(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1010 }
	b.Add("AAPL", 100, 0, 1000)
	b.Add("AAPL", 101, 0, 1001)
	ind := b.GetIndicators("AAPL")
	assert.Nil(t, ind.VWAP)
}

func TestVWAPComputed(t *testing.T) {
	b := New(120)
	b.now = func() float64 { return 1010 }
	b.Add("AAPL", 100, 10, 1000)
	b.Add("AAPL", 200, 30, 1001)
	ind := b.GetIndicators("AAPL")
	require.NotNil(t, ind.VWAP)
	// (100*10 + 200*30) / (10+30) = (1000+6000)/40 = 175
	assert.InDelta(t, 175.0, *ind.VWAP, 1e-9)
}
