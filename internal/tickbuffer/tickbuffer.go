// Package tickbuffer holds a time-windowed, per-symbol ring of ticks
// and derives momentum/mean/stdev/VWAP indicators from it on demand.
package tickbuffer

import (
	"math"
	"sync"
	"time"
)

// Tick is a single executed trade print.
type Tick struct {
	Price     float64
	Size      float64
	Timestamp float64 // unix seconds
}

const defaultMaxAgeSeconds = 120

var momentumWindows = []int{5, 10, 15, 30, 60}
var statWindows = []int{30, 60, 120}

// Buffer is a mapping from symbol to an ordered, age-pruned tick
// sequence. One mutex guards the whole map, matching the single-
// mutex-per-component rule for shared mutable state.
type Buffer struct {
	mu           sync.Mutex
	bySymbol     map[string][]Tick
	maxAgeSecond float64
	now          func() float64
}

// New creates a Buffer pruning ticks older than maxAgeSeconds (0 uses
// the default of 120).
func New(maxAgeSeconds float64) *Buffer {
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = defaultMaxAgeSeconds
	}
	return &Buffer{
		bySymbol:     make(map[string][]Tick),
		maxAgeSecond: maxAgeSeconds,
		now:          func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Add appends a tick for symbol and prunes ticks older than
// max_age_seconds relative to the current time.
func (b *Buffer) Add(symbol string, price, size float64, timestamp float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ticks := append(b.bySymbol[symbol], Tick{Price: price, Size: size, Timestamp: timestamp})
	cutoff := b.now() - b.maxAgeSecond
	ticks = pruneOlderThan(ticks, cutoff)
	b.bySymbol[symbol] = ticks
}

func pruneOlderThan(ticks []Tick, cutoff float64) []Tick {
	i := 0
	for i < len(ticks) && ticks[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return ticks
	}
	out := make([]Tick, len(ticks)-i)
	copy(out, ticks[i:])
	return out
}

// Indicators is the opaque result of GetIndicators. The windowed
// indicators are maps keyed by N and VWAP is a pointer, so an omitted
// indicator is distinguishable from a zero value, matching the spec's
// "omitted if ..." rules.
type Indicators struct {
	TickCount int
	LastPrice float64

	MomentumPct map[int]float64 // keyed by lookback seconds N -> momentum_Ns
	Mean        map[int]float64 // keyed by window seconds N -> mean_Ns
	Std         map[int]float64 // keyed by window seconds N -> std_Ns
	VWAP        *float64
}

// Empty reports whether the result carries no data (fewer than 2
// ticks in the buffer).
func (ind *Indicators) Empty() bool {
	return ind == nil || ind.TickCount == 0 && ind.LastPrice == 0 && len(ind.MomentumPct) == 0
}

// GetIndicators computes indicators for symbol from the current
// buffer state. Pure function of buffer contents and current time.
func (b *Buffer) GetIndicators(symbol string) *Indicators {
	b.mu.Lock()
	ticks := append([]Tick(nil), b.bySymbol[symbol]...)
	now := b.now()
	b.mu.Unlock()

	return computeIndicators(ticks, now)
}

func computeIndicators(ticks []Tick, now float64) *Indicators {
	if len(ticks) < 2 {
		return &Indicators{}
	}

	ind := &Indicators{
		TickCount:   len(ticks),
		LastPrice:   ticks[len(ticks)-1].Price,
		MomentumPct: make(map[int]float64),
		Mean:        make(map[int]float64),
		Std:         make(map[int]float64),
	}

	last := ticks[len(ticks)-1].Price
	for _, n := range momentumWindows {
		firstInWindow, ok := oldestInWindow(ticks, now-float64(n))
		if !ok || firstInWindow == 0 {
			continue
		}
		ind.MomentumPct[n] = 100 * (last - firstInWindow) / firstInWindow
	}

	for _, n := range statWindows {
		prices := pricesInWindow(ticks, now-float64(n))
		if len(prices) < 5 {
			continue
		}
		mean := meanOf(prices)
		ind.Mean[n] = mean
		ind.Std[n] = sampleStdev(prices, mean)
	}

	var sumTPV, sumVol float64
	for _, t := range ticks {
		sumTPV += t.Price * t.Size
		sumVol += t.Size
	}
	if sumVol != 0 {
		vwap := sumTPV / sumVol
		ind.VWAP = &vwap
	}

	return ind
}

func oldestInWindow(ticks []Tick, cutoff float64) (float64, bool) {
	for _, t := range ticks {
		if t.Timestamp >= cutoff {
			return t.Price, true
		}
	}
	return 0, false
}

func pricesInWindow(ticks []Tick, cutoff float64) []float64 {
	var out []float64
	for _, t := range ticks {
		if t.Timestamp >= cutoff {
			out = append(out, t.Price)
		}
	}
	return out
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdev is the Bessel-corrected (N-1) standard deviation; 0 if
// fewer than 2 values.
func sampleStdev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
