package alpacarest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"paperrunner/internal/logging"
	"paperrunner/internal/metrics"
)

// SignalSide mirrors strategy.Kind without importing the strategy
// package, keeping this package reusable from both engines.
type SignalSide string

const (
	SideBuy  SignalSide = "buy"
	SideSell SignalSide = "sell"
)

// Config holds the safety-rail thresholds.
type Config struct {
	MaxOrdersPerMinute int
	CooldownSeconds    float64
	MaxPositionPct     float64
	PaperOnly          bool
}

// OrderManager guards order submission with a rate limit, a
// per-symbol cooldown, and a position-exposure cap, then submits via
// Client. One mutex protects the rate-limit list and the
// last-order-time map, per spec.md §5/§9.
type OrderManager struct {
	client *Client
	cfg    Config
	log    *logging.Logger

	mu              sync.Mutex
	recentOrderTime []time.Time
	lastOrderTime   map[string]time.Time

	accMu         sync.RWMutex
	accountEquity float64
	positions     map[string]Position
}

// NewOrderManager constructs an OrderManager. It refuses to start if
// PaperOnly is set and the client's base URL does not identify the
// paper endpoint.
func NewOrderManager(client *Client, cfg Config) (*OrderManager, error) {
	if cfg.PaperOnly && !strings.Contains(client.BaseURL, "paper") {
		return nil, fmt.Errorf("paper-only guard: base URL %q does not identify the paper endpoint", client.BaseURL)
	}
	return &OrderManager{
		client:          client,
		cfg:             cfg,
		log:             logging.For("order-manager"),
		lastOrderTime:   make(map[string]time.Time),
		positions:       make(map[string]Position),
	}, nil
}

// RefreshAccount re-fetches /v2/account and /v2/positions and updates
// the cached equity and positions map used by the exposure cap.
func (m *OrderManager) RefreshAccount(ctx context.Context) error {
	account, err := m.client.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("refresh account: %w", err)
	}
	positions, err := m.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}

	bysymbol := make(map[string]Position, len(positions))
	for _, p := range positions {
		bysymbol[p.Symbol] = p
	}

	m.accMu.Lock()
	m.accountEquity = account.Equity
	m.positions = bysymbol
	m.accMu.Unlock()

	metrics.SetAccountEquity(account.Equity)
	return nil
}

// Submit runs the safety pipeline and, if it passes, submits the
// order. A (nil, nil) return is a safety-rail rejection, not an error.
func (m *OrderManager) Submit(ctx context.Context, side SignalSide, symbol string, dollarAmount float64) (*OrderResult, error) {
	now := time.Now()

	m.mu.Lock()
	m.recentOrderTime = pruneOlderThan(m.recentOrderTime, now.Add(-60*time.Second))
	if len(m.recentOrderTime) >= m.cfg.MaxOrdersPerMinute {
		m.mu.Unlock()
		m.log.Infof("rejecting order for %s: rate limit (%d/min) reached", symbol, m.cfg.MaxOrdersPerMinute)
		metrics.RecordOrderRejected("streaming", "rate_limit")
		return nil, nil
	}
	if last, ok := m.lastOrderTime[symbol]; ok && now.Sub(last).Seconds() < m.cfg.CooldownSeconds {
		m.mu.Unlock()
		m.log.Infof("rejecting order for %s: cooldown not elapsed", symbol)
		metrics.RecordOrderRejected("streaming", "cooldown")
		return nil, nil
	}
	m.mu.Unlock()

	if side == SideBuy {
		if rejected := m.exceedsExposureCap(symbol, dollarAmount); rejected {
			m.log.Infof("rejecting BUY for %s: position exposure cap exceeded", symbol)
			metrics.RecordOrderRejected("streaming", "position_cap")
			return nil, nil
		}
	}

	req := OrderRequest{
		Symbol:      symbol,
		Side:        string(side),
		Type:        "market",
		TimeInForce: "day",
	}
	if side == SideBuy {
		req.Notional = strconv.FormatFloat(round2(dollarAmount), 'f', 2, 64)
	} else {
		qty, ok := m.currentPositionQty(symbol)
		if !ok || qty <= 0 {
			m.log.Infof("rejecting SELL for %s: no current position reported by broker", symbol)
			metrics.RecordOrderRejected("streaming", "no_position")
			return nil, nil
		}
		req.Qty = strconv.FormatFloat(qty, 'f', -1, 64)
	}

	result, err := m.client.SubmitOrder(ctx, req)
	if err != nil {
		m.log.Warnf("order submission failed for %s: %v", symbol, err)
		return nil, nil
	}

	m.mu.Lock()
	m.recentOrderTime = append(m.recentOrderTime, now)
	m.lastOrderTime[symbol] = now
	m.mu.Unlock()

	metrics.RecordOrderSubmitted("streaming", string(side))
	return result, nil
}

func (m *OrderManager) exceedsExposureCap(symbol string, dollarAmount float64) bool {
	m.accMu.RLock()
	equity := m.accountEquity
	marketValue := m.positions[symbol].MarketValue
	m.accMu.RUnlock()

	if equity <= 0 {
		return false
	}
	return (marketValue+dollarAmount)/equity > m.cfg.MaxPositionPct
}

func (m *OrderManager) currentPositionQty(symbol string) (float64, bool) {
	m.accMu.RLock()
	defer m.accMu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return 0, false
	}
	return pos.Qty, true
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	out := make([]time.Time, len(times)-i)
	copy(out, times[i:])
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
