// Package engine is the Streaming Engine Orchestrator: it wires the
// market-data stream client to the tick buffer, the strategy family,
// and the order manager, and supervises the three long-running
// activities (stream loop, account refresher, stats logger) with an
// errgroup so a fatal error on any one of them brings the others down
// cleanly.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"paperrunner/internal/alpacarest"
	"paperrunner/internal/logging"
	"paperrunner/internal/metrics"
	"paperrunner/internal/storeclient"
	"paperrunner/internal/storequeue"
	"paperrunner/internal/strategy"
	"paperrunner/internal/stream"
	"paperrunner/internal/tickbuffer"
)

const (
	accountRefreshInterval = 60 * time.Second
	statsLogInterval       = 30 * time.Second
)

// Engine is the streaming orchestrator.
type Engine struct {
	streamClient *stream.Client
	orders       *alpacarest.OrderManager
	buffer       *tickbuffer.Buffer
	strategies   []strategy.Strategy
	store        *storeclient.Client
	queue        *storequeue.Queue
	algorithmID  string
	log          *logging.Logger

	symbolStrategies map[string][]strategy.Strategy

	mu          sync.Mutex
	tickCount   int64
	signalCount int64
	orderCount  int64
	lastTick    map[string]time.Time
}

// New constructs an Engine from a connected-but-not-yet-dialed stream
// client, an order manager, a tick buffer, and the full strategy set.
// store and queue may be nil; with a nil store, fills still update the
// strategy's positions but are never sent to the dashboard store (used
// by tests that don't stand up a store server).
func New(streamClient *stream.Client, orders *alpacarest.OrderManager, buffer *tickbuffer.Buffer, strategies []strategy.Strategy, store *storeclient.Client, queue *storequeue.Queue, algorithmID string) *Engine {
	symbolStrategies := make(map[string][]strategy.Strategy)
	for _, s := range strategies {
		for _, sym := range s.Symbols() {
			symbolStrategies[sym] = append(symbolStrategies[sym], s)
		}
	}
	return &Engine{
		streamClient:     streamClient,
		orders:           orders,
		buffer:           buffer,
		strategies:       strategies,
		store:            store,
		queue:            queue,
		algorithmID:      algorithmID,
		log:              logging.For("engine"),
		symbolStrategies: symbolStrategies,
		lastTick:         make(map[string]time.Time),
	}
}

// Symbols returns the union of symbols subscribed to by any strategy.
func (e *Engine) Symbols() []string {
	symbols := make([]string, 0, len(e.symbolStrategies))
	for sym := range e.symbolStrategies {
		symbols = append(symbols, sym)
	}
	return symbols
}

// Status is a snapshot of the engine's operational state, served by
// the internal HTTP surface's /status endpoint.
type Status struct {
	Symbols       []string             `json:"symbols"`
	StrategyCount int                  `json:"strategy_count"`
	TickCount     int64                `json:"tick_count"`
	SignalCount   int64                `json:"signal_count"`
	OrderCount    int64                `json:"order_count"`
	LastTickAt    map[string]time.Time `json:"last_tick_at"`
}

// Status returns a snapshot safe for concurrent callers.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	lastTick := make(map[string]time.Time, len(e.lastTick))
	for sym, t := range e.lastTick {
		lastTick[sym] = t
	}
	return Status{
		Symbols:       e.Symbols(),
		StrategyCount: len(e.strategies),
		TickCount:     e.tickCount,
		SignalCount:   e.signalCount,
		OrderCount:    e.orderCount,
		LastTickAt:    lastTick,
	}
}

// Run connects, subscribes, and runs until ctx is cancelled or a
// fatal error occurs on any supervised activity.
func (e *Engine) Run(ctx context.Context) error {
	symbols := e.Symbols()
	e.log.Infof("starting streaming engine with %d strategies, symbols=%v", len(e.strategies), symbols)

	if err := e.streamClient.Connect(); err != nil {
		return err
	}
	if err := e.streamClient.Subscribe(symbols); err != nil {
		return err
	}
	if err := e.orders.RefreshAccount(ctx); err != nil {
		e.log.Warnf("initial account refresh failed: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.streamClient.Run(stream.Handlers{
			OnTrade: e.handleTrade,
			OnBar:   e.handleBar,
		})
	})

	g.Go(func() error {
		return e.accountRefreshLoop(gctx)
	})

	g.Go(func() error {
		return e.statsLoop(gctx)
	})

	if e.queue != nil {
		g.Go(func() error {
			return e.queueDrainLoop(gctx)
		})
	}

	// The stream loop returns when gctx is cancelled (via Close, below)
	// or on a fatal read error; either way errgroup.Wait unblocks the
	// other two loops through gctx cancellation.
	go func() {
		<-gctx.Done()
		e.streamClient.Close()
	}()

	err := g.Wait()
	e.orders.RefreshAccount(context.Background())
	if err != nil && ctx.Err() != nil {
		// Shutdown was requested; a close-triggered read error is expected.
		return nil
	}
	return err
}

func (e *Engine) handleTrade(t stream.Trade) {
	e.mu.Lock()
	e.tickCount++
	e.lastTick[t.Symbol] = time.Now()
	e.mu.Unlock()

	metrics.RecordTick(t.Symbol)
	e.buffer.Add(t.Symbol, t.Price, t.Size, float64(t.Timestamp.UnixNano())/1e9)
	indicators := adaptIndicators(e.buffer.GetIndicators(t.Symbol))

	for _, s := range e.symbolStrategies[t.Symbol] {
		if !s.Enabled() {
			continue
		}
		sig := s.OnTick(t.Symbol, t.Price, indicators)
		if sig != nil {
			e.handleSignal(sig, s)
		}
	}
}

func (e *Engine) handleBar(b stream.Bar) {
	indicators := adaptIndicators(e.buffer.GetIndicators(b.Symbol))
	bar := strategy.Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume, Timestamp: b.Timestamp}

	for _, s := range e.symbolStrategies[b.Symbol] {
		if !s.Enabled() {
			continue
		}
		sig := s.OnBar(b.Symbol, bar, indicators)
		if sig != nil {
			e.handleSignal(sig, s)
		}
	}
}

func (e *Engine) handleSignal(sig *strategy.Signal, s strategy.Strategy) {
	e.mu.Lock()
	e.signalCount++
	e.mu.Unlock()
	e.log.Infof("signal: %s - %s %s @ %.2f (%s)", sig.Strategy, sig.Kind, sig.Symbol, sig.Price, sig.Reason)

	// The config carrying cash_allocation/position_size_pct lives with
	// the concrete strategy; Base exposes it via the interface methods
	// needed here rather than a type switch per strategy kind.
	dollarAmount := 0.0
	if sig.Kind == strategy.Buy {
		dollarAmount = s.CashAllocation() * s.PositionSizePct()
	}

	side := alpacarest.SideSell
	if sig.Kind == strategy.Buy {
		side = alpacarest.SideBuy
	}

	ctx := context.Background()
	result, err := e.orders.Submit(ctx, side, sig.Symbol, dollarAmount)
	if err != nil {
		e.log.Warnf("order submission error for %s: %v", sig.Symbol, err)
		return
	}
	if result == nil {
		return // safety-rail rejection, not an error
	}

	e.mu.Lock()
	e.orderCount++
	e.mu.Unlock()

	var filledQty float64
	if sig.Kind == strategy.Buy {
		filledQty = result.FilledQuantity()
		if filledQty == 0 {
			filledQty = dollarAmount / sig.Price
		}
		s.UpdatePosition(sig.Symbol, s.GetPosition(sig.Symbol)+filledQty)
	} else {
		filledQty = result.FilledQuantity()
		s.UpdatePosition(sig.Symbol, 0)
	}

	e.recordTrade(ctx, sig, side, result, filledQty)
}

// recordTrade sends the fill to the dashboard store, matching
// spec.md's "a D1 sync collaborator records fills on the dashboard
// store" (§2). A store failure falls back to the local durable queue
// rather than dropping the record, same as the scheduled engine.
func (e *Engine) recordTrade(ctx context.Context, sig *strategy.Signal, side alpacarest.SignalSide, result *alpacarest.OrderResult, filledQty float64) {
	if e.store == nil {
		return
	}
	fillPrice := sig.Price
	if p, ok := result.FilledPrice(); ok {
		fillPrice = p
	}
	trade := storeclient.NewTrade(e.algorithmID, sig.Symbol, string(side), filledQty, result.ID, result.Status, sig.Reason, fillPrice, filledQty)
	if err := e.store.RecordTrade(ctx, trade); err != nil {
		e.log.Warnf("record trade failed for %s: %v", sig.Symbol, err)
		if e.queue != nil {
			if qErr := e.queue.Enqueue(ctx, trade); qErr != nil {
				e.log.Errorf("failed to durably queue trade %s after store failure: %v", trade.ID, qErr)
			}
		}
	}
}

func (e *Engine) accountRefreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(accountRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.orders.RefreshAccount(ctx); err != nil {
				e.log.Warnf("account refresh failed: %v", err)
			}
		}
	}
}

func (e *Engine) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := e.Status()
			e.log.Infof("stats: %d ticks, %d signals, %d orders", status.TickCount, status.SignalCount, status.OrderCount)
		}
	}
}

// queueDrainLoop periodically retries delivery of trades that failed
// to reach the dashboard store at fill time.
func (e *Engine) queueDrainLoop(ctx context.Context) error {
	ticker := time.NewTicker(accountRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			delivered, err := e.queue.Drain(ctx, e.store)
			if err != nil {
				e.log.Warnf("queued trade drain failed: %v", err)
				continue
			}
			if delivered > 0 {
				e.log.Infof("delivered %d previously queued trade(s)", delivered)
			}
		}
	}
}

func adaptIndicators(ind *tickbuffer.Indicators) strategy.Indicators {
	if ind == nil {
		return strategy.Indicators{}
	}
	return strategy.Indicators{
		MomentumPct: ind.MomentumPct,
		Mean:        ind.Mean,
		Std:         ind.Std,
	}
}
