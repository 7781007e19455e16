package strategy

import (
	"sync"
	"time"
)

// Strategy is the shared contract all five variants implement. A
// small interface, no inheritance, per spec.md §9.
type Strategy interface {
	Name() string
	Symbols() []string
	Enabled() bool
	OnTick(symbol string, price float64, indicators Indicators) *Signal
	OnBar(symbol string, bar Bar, indicators Indicators) *Signal
	HasPosition(symbol string) bool
	GetPosition(symbol string) float64
	UpdatePosition(symbol string, qty float64)
	CashAllocation() float64
	PositionSizePct() float64
}

// Indicators is the subset of tickbuffer.Indicators a strategy reads.
// Declared locally to keep this package free of a dependency on
// tickbuffer's concrete type; internal/engine adapts between them.
type Indicators struct {
	MomentumPct map[int]float64
	Mean        map[int]float64
	Std         map[int]float64
}

// Base holds the state common to every strategy: per-symbol position
// held, per-symbol last-signal time, and the bought set for
// buy-and-hold. One mutex guards all of it, per spec.md §5/§9.
type Base struct {
	mu              sync.Mutex
	config          Config
	positions       map[string]float64
	lastSignalTime  map[string]time.Time
	bought          map[string]bool
	prevShortAbove  map[string]*bool
	priceRing       map[string][]float64
}

func newBase(cfg Config) Base {
	return Base{
		config:         cfg.WithDefaults(),
		positions:      make(map[string]float64),
		lastSignalTime: make(map[string]time.Time),
		bought:         make(map[string]bool),
		prevShortAbove: make(map[string]*bool),
		priceRing:      make(map[string][]float64),
	}
}

func (b *Base) Name() string             { return b.config.Name }
func (b *Base) Symbols() []string        { return b.config.Symbols }
func (b *Base) Enabled() bool            { return b.config.Enabled }
func (b *Base) CashAllocation() float64  { return b.config.CashAllocation }
func (b *Base) PositionSizePct() float64 { return b.config.PositionSizePct }

func (b *Base) HasPosition(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol] > 0
}

func (b *Base) GetPosition(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol]
}

func (b *Base) UpdatePosition(symbol string, qty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = qty
}

// inCooldown reports whether symbol last signaled within the
// strategy's cooldown window.
func (b *Base) inCooldown(symbol string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, ok := b.lastSignalTime[symbol]
	if !ok {
		return false
	}
	return now.Sub(last).Seconds() < b.config.CooldownSeconds
}

func (b *Base) recordSignal(symbol string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSignalTime[symbol] = now
}

func (b *Base) makeSignal(kind Kind, symbol, reason string, price float64, now time.Time) *Signal {
	b.recordSignal(symbol, now)
	return &Signal{
		Kind:      kind,
		Symbol:    symbol,
		Strategy:  b.config.Name,
		Reason:    reason,
		Price:     price,
		Timestamp: now,
	}
}
