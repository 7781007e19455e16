// Package schedengine is the Scheduled Engine: a periodic (roughly
// once-a-minute) batch evaluator of daily-bar strategies against a
// per-algorithm cash ledger, distinct from the streaming engine's
// broker-equity model. Grounded in full on
// original_source/trading-engine/src/entry.py.
package schedengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paperrunner/internal/alpacarest"
	"paperrunner/internal/logging"
	"paperrunner/internal/metrics"
	"paperrunner/internal/storequeue"
	"paperrunner/internal/strategy"
	"paperrunner/internal/storeclient"
)

// Engine is the scheduled orchestrator.
type Engine struct {
	broker *alpacarest.Client
	store  *storeclient.Client
	queue  *storequeue.Queue
	log    *logging.Logger

	mu            sync.Mutex
	lastRunAt     time.Time
	lastAlgoRunAt map[string]time.Time
}

// New constructs a scheduled Engine. queue may be nil, in which case a
// RecordTrade failure is only logged, not durably retried.
func New(broker *alpacarest.Client, store *storeclient.Client, queue *storequeue.Queue) *Engine {
	return &Engine{
		broker:        broker,
		store:         store,
		queue:         queue,
		log:           logging.For("schedengine"),
		lastAlgoRunAt: make(map[string]time.Time),
	}
}

// Status is served by the /status endpoint.
type Status struct {
	LastRunAt        time.Time            `json:"last_run_at"`
	EnabledAlgorithms int                 `json:"enabled_algorithms"`
	LastAlgoRunAt    map[string]time.Time `json:"last_algo_run_at"`
}

func (e *Engine) recordRun(algoID string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRunAt = at
	e.lastAlgoRunAt[algoID] = at
}

// Status returns a snapshot of the engine's last-run bookkeeping.
// enabledCount is supplied by the caller (a fresh store read), since
// the engine itself holds no standing algorithm list between runs.
func (e *Engine) Status(enabledCount int) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	lastAlgoRunAt := make(map[string]time.Time, len(e.lastAlgoRunAt))
	for id, t := range e.lastAlgoRunAt {
		lastAlgoRunAt[id] = t
	}
	return Status{
		LastRunAt:         e.lastRunAt,
		EnabledAlgorithms: enabledCount,
		LastAlgoRunAt:     lastAlgoRunAt,
	}
}

// RunOnce is the cron-triggered entrypoint: skip if the market is
// closed, sweep hourly snapshots at the top of the hour, then dispatch
// every enabled algorithm.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) error {
	clock, err := e.broker.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("check market clock: %w", err)
	}
	if !clock.IsOpen {
		e.log.Infof("market closed, skipping scheduled run")
		return nil
	}

	if now.Minute() == 0 {
		if err := e.snapshotAll(ctx); err != nil {
			e.log.Warnf("hourly snapshot sweep failed: %v", err)
		}
	}

	if e.queue != nil {
		if delivered, err := e.queue.Drain(ctx, e.store); err != nil {
			e.log.Warnf("queued trade drain failed: %v", err)
		} else if delivered > 0 {
			e.log.Infof("delivered %d previously queued trade(s)", delivered)
		}
	}

	algorithms, err := e.store.ListEnabledAlgorithms(ctx)
	if err != nil {
		return fmt.Errorf("list enabled algorithms: %w", err)
	}

	for _, algo := range algorithms {
		if err := e.RunAlgorithm(ctx, algo); err != nil {
			e.log.Warnf("error running algorithm %s: %v", algo.ID, err)
		}
		e.recordRun(algo.ID, now)
	}
	return nil
}

// RunAlgorithm dispatches one algorithm by strategy kind. Exported so
// the /test HTTP handler can invoke it outside the cron cadence.
func (e *Engine) RunAlgorithm(ctx context.Context, algo storeclient.Algorithm) error {
	switch strategy.ConfigKind(algo.StrategyType) {
	case strategy.KindSMACrossover:
		return e.runSMACrossover(ctx, algo)
	case strategy.KindRSI:
		return e.runRSI(ctx, algo)
	case strategy.KindMomentum:
		return e.runMomentum(ctx, algo)
	case strategy.KindMeanReversion:
		return e.runMeanReversion(ctx, algo)
	case strategy.KindBuyAndHold:
		return e.runBuyAndHold(ctx, algo)
	default:
		return fmt.Errorf("unknown strategy type %q", algo.StrategyType)
	}
}

type smaCrossoverConfig struct {
	ShortPeriod     int     `json:"short_period"`
	LongPeriod      int     `json:"long_period"`
	PositionSizePct float64 `json:"position_size_pct"`
}

func (e *Engine) runSMACrossover(ctx context.Context, algo storeclient.Algorithm) error {
	cfg := smaCrossoverConfig{ShortPeriod: 10, LongPeriod: 50, PositionSizePct: 0.1}
	if err := unmarshalConfig(algo.Config, &cfg); err != nil {
		return err
	}
	for _, symbol := range algo.Symbols {
		closes, err := e.closesFor(ctx, symbol, cfg.LongPeriod+5)
		if err != nil {
			e.log.Warnf("sma_crossover: bars fetch failed for %s: %v", symbol, err)
			continue
		}
		if len(closes) < cfg.LongPeriod {
			continue
		}
		position, err := e.store.GetPosition(ctx, algo.ID, symbol)
		if err != nil {
			e.log.Warnf("sma_crossover: position fetch failed for %s: %v", symbol, err)
			continue
		}
		kind, emitted := strategy.EvaluateSMACrossoverDaily(closes, cfg.ShortPeriod, cfg.LongPeriod, position != nil)
		if !emitted {
			continue
		}
		if kind == strategy.Buy {
			e.submitOrder(ctx, algo, symbol, "buy", cfg.PositionSizePct, "SMA crossover buy signal")
		} else {
			e.submitOrder(ctx, algo, symbol, "sell", position.Quantity, "SMA crossover sell signal")
		}
	}
	return nil
}

type rsiConfig struct {
	Period          int     `json:"period"`
	Oversold        float64 `json:"oversold"`
	Overbought      float64 `json:"overbought"`
	PositionSizePct float64 `json:"position_size_pct"`
}

func (e *Engine) runRSI(ctx context.Context, algo storeclient.Algorithm) error {
	cfg := rsiConfig{Period: 14, Oversold: 30, Overbought: 70, PositionSizePct: 0.1}
	if err := unmarshalConfig(algo.Config, &cfg); err != nil {
		return err
	}
	for _, symbol := range algo.Symbols {
		closes, err := e.closesFor(ctx, symbol, cfg.Period+5)
		if err != nil {
			e.log.Warnf("rsi: bars fetch failed for %s: %v", symbol, err)
			continue
		}
		if len(closes) < cfg.Period+1 {
			continue
		}
		position, err := e.store.GetPosition(ctx, algo.ID, symbol)
		if err != nil {
			e.log.Warnf("rsi: position fetch failed for %s: %v", symbol, err)
			continue
		}
		kind, emitted := strategy.EvaluateRSIDaily(closes, cfg.Period, cfg.Oversold, cfg.Overbought, position != nil)
		if !emitted {
			continue
		}
		if kind == strategy.Buy {
			e.submitOrder(ctx, algo, symbol, "buy", cfg.PositionSizePct, "RSI oversold")
		} else {
			e.submitOrder(ctx, algo, symbol, "sell", position.Quantity, "RSI overbought")
		}
	}
	return nil
}

type momentumConfig struct {
	LookbackDays    int     `json:"lookback_days"`
	ThresholdPct    float64 `json:"threshold_pct"`
	PositionSizePct float64 `json:"position_size_pct"`
}

func (e *Engine) runMomentum(ctx context.Context, algo storeclient.Algorithm) error {
	cfg := momentumConfig{LookbackDays: 20, ThresholdPct: 5, PositionSizePct: 0.1}
	if err := unmarshalConfig(algo.Config, &cfg); err != nil {
		return err
	}
	for _, symbol := range algo.Symbols {
		closes, err := e.closesFor(ctx, symbol, cfg.LookbackDays+1)
		if err != nil {
			e.log.Warnf("momentum: bars fetch failed for %s: %v", symbol, err)
			continue
		}
		if len(closes) < cfg.LookbackDays {
			continue
		}
		position, err := e.store.GetPosition(ctx, algo.ID, symbol)
		if err != nil {
			e.log.Warnf("momentum: position fetch failed for %s: %v", symbol, err)
			continue
		}
		kind, emitted := strategy.EvaluateMomentumDaily(closes, cfg.LookbackDays, cfg.ThresholdPct, cfg.ThresholdPct, position != nil)
		if !emitted {
			continue
		}
		if kind == strategy.Buy {
			e.submitOrder(ctx, algo, symbol, "buy", cfg.PositionSizePct, "Momentum buy")
		} else {
			e.submitOrder(ctx, algo, symbol, "sell", position.Quantity, "Momentum sell")
		}
	}
	return nil
}

type meanReversionConfig struct {
	WindowDays      int     `json:"window_days"`
	StdThreshold    float64 `json:"std_threshold"`
	ExitThreshold   float64 `json:"exit_threshold"`
	PositionSizePct float64 `json:"position_size_pct"`
}

func (e *Engine) runMeanReversion(ctx context.Context, algo storeclient.Algorithm) error {
	cfg := meanReversionConfig{WindowDays: 20, StdThreshold: 2, ExitThreshold: 0.5, PositionSizePct: 0.1}
	if err := unmarshalConfig(algo.Config, &cfg); err != nil {
		return err
	}
	for _, symbol := range algo.Symbols {
		closes, err := e.closesFor(ctx, symbol, cfg.WindowDays+5)
		if err != nil {
			e.log.Warnf("mean_reversion: bars fetch failed for %s: %v", symbol, err)
			continue
		}
		if len(closes) < cfg.WindowDays {
			continue
		}
		position, err := e.store.GetPosition(ctx, algo.ID, symbol)
		if err != nil {
			e.log.Warnf("mean_reversion: position fetch failed for %s: %v", symbol, err)
			continue
		}
		kind, emitted := strategy.EvaluateMeanReversionDaily(closes, cfg.WindowDays, cfg.StdThreshold, cfg.ExitThreshold, position != nil)
		if !emitted {
			continue
		}
		if kind == strategy.Buy {
			e.submitOrder(ctx, algo, symbol, "buy", cfg.PositionSizePct, "mean reversion buy")
		} else {
			e.submitOrder(ctx, algo, symbol, "sell", position.Quantity, "mean reversion sell")
		}
	}
	return nil
}

func (e *Engine) runBuyAndHold(ctx context.Context, algo storeclient.Algorithm) error {
	var cfg struct {
		PositionSizePct float64 `json:"position_size_pct"`
	}
	cfg.PositionSizePct = 1.0
	if err := unmarshalConfig(algo.Config, &cfg); err != nil {
		return err
	}
	for _, symbol := range algo.Symbols {
		position, err := e.store.GetPosition(ctx, algo.ID, symbol)
		if err != nil {
			e.log.Warnf("buy_and_hold: position fetch failed for %s: %v", symbol, err)
			continue
		}
		if position == nil {
			e.submitOrder(ctx, algo, symbol, "buy", cfg.PositionSizePct, "Buy and hold initial purchase")
		}
	}
	return nil
}

func unmarshalConfig(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse strategy config: %w", err)
	}
	return nil
}

// closesFor fetches the most recent daily closes for a symbol,
// falling back to a single synthetic bar from the latest trade price
// when the brokerage returns no bars (market closed or no prints).
func (e *Engine) closesFor(ctx context.Context, symbol string, limit int) ([]float64, error) {
	bars, err := e.broker.GetBars(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		price, err := e.broker.GetLatestTrade(ctx, symbol)
		if err != nil {
			return nil, nil
		}
		return []float64{price}, nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes, nil
}

// quantityOrPct mirrors entry.py's submit_order calling convention:
// for a BUY, a value <= 1 is a position-size fraction of the
// algorithm's cash and a value > 1 is a literal share quantity; for a
// SELL it is always the literal share quantity to liquidate.
func (e *Engine) submitOrder(ctx context.Context, algo storeclient.Algorithm, symbol, side string, quantityOrPct float64, notes string) {
	closes, err := e.closesFor(ctx, symbol, 1)
	if err != nil || len(closes) == 0 {
		e.log.Warnf("submit_order: no current price for %s: %v", symbol, err)
		return
	}
	currentPrice := decimal.NewFromFloat(closes[len(closes)-1])
	cash := decimal.NewFromFloat(algo.Cash)

	var qty int64
	if side == "buy" && quantityOrPct <= 1 {
		dollarAmount := cash.Mul(decimal.NewFromFloat(quantityOrPct))
		qty = dollarAmount.Div(currentPrice).IntPart()
	} else {
		qty = int64(quantityOrPct)
	}
	if qty <= 0 {
		return
	}

	if side == "buy" {
		estimatedCost := currentPrice.Mul(decimal.NewFromInt(qty))
		if estimatedCost.GreaterThan(cash) {
			e.log.Infof("insufficient cash for %s on %s: need %s, have %s", algo.Name, symbol, estimatedCost.StringFixed(2), cash.StringFixed(2))
			metrics.RecordOrderRejected("scheduled", "insufficient_cash")
			return
		}
	}

	result, err := e.broker.SubmitOrder(ctx, alpacarest.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        "market",
		TimeInForce: "day",
		Qty:         fmt.Sprintf("%d", qty),
	})
	if err != nil {
		e.log.Warnf("order submission failed for %s/%s: %v", algo.ID, symbol, err)
		return
	}
	metrics.RecordOrderSubmitted("scheduled", side)

	fillPrice := currentPrice
	if p, ok := result.FilledPrice(); ok {
		fillPrice = decimal.NewFromFloat(p)
	}

	trade := storeclient.NewTrade(algo.ID, symbol, side, float64(qty), result.ID, result.Status, notes, fillPrice.InexactFloat64(), float64(qty))
	if err := e.store.RecordTrade(ctx, trade); err != nil {
		e.log.Warnf("record trade failed for %s/%s: %v", algo.ID, symbol, err)
		if e.queue != nil {
			if qErr := e.queue.Enqueue(ctx, trade); qErr != nil {
				e.log.Errorf("failed to durably queue trade %s after store failure: %v", trade.ID, qErr)
			}
		}
	}

	if side == "buy" {
		e.settleBuy(ctx, algo, symbol, qty, fillPrice)
	} else {
		e.settleSell(ctx, algo, symbol, qty, fillPrice)
	}

	if err := e.snapshotOne(ctx, algo.ID, "trade"); err != nil {
		e.log.Warnf("post-trade snapshot failed for %s: %v", algo.ID, err)
	}

	e.log.Infof("order submitted: %s %d %s for %s", side, qty, symbol, algo.Name)
}

func (e *Engine) settleBuy(ctx context.Context, algo storeclient.Algorithm, symbol string, qty int64, fillPrice decimal.Decimal) {
	existing, err := e.store.GetPosition(ctx, algo.ID, symbol)
	if err != nil {
		e.log.Warnf("settleBuy: position read failed for %s: %v", symbol, err)
		return
	}

	qtyDec := decimal.NewFromInt(qty)
	cost := fillPrice.Mul(qtyDec)

	var newQty, newAvg decimal.Decimal
	if existing != nil {
		oldQty := decimal.NewFromFloat(existing.Quantity)
		oldAvg := decimal.NewFromFloat(existing.AvgEntryPrice)
		newQty = oldQty.Add(qtyDec)
		oldValue := oldQty.Mul(oldAvg)
		newValue := cost
		if newQty.IsPositive() {
			newAvg = oldValue.Add(newValue).Div(newQty)
		}
	} else {
		newQty = qtyDec
		newAvg = fillPrice
	}

	if err := e.store.UpsertPosition(ctx, storeclient.Position{
		AlgorithmID:   algo.ID,
		Symbol:        symbol,
		Quantity:      newQty.InexactFloat64(),
		AvgEntryPrice: newAvg.InexactFloat64(),
	}); err != nil {
		e.log.Warnf("settleBuy: position write failed for %s: %v", symbol, err)
	}

	newCash := decimal.NewFromFloat(algo.Cash).Sub(cost)
	if err := e.store.UpdateAlgorithmCash(ctx, algo.ID, newCash.InexactFloat64()); err != nil {
		e.log.Warnf("settleBuy: cash write failed for %s: %v", algo.ID, err)
	}
}

func (e *Engine) settleSell(ctx context.Context, algo storeclient.Algorithm, symbol string, qty int64, fillPrice decimal.Decimal) {
	existing, err := e.store.GetPosition(ctx, algo.ID, symbol)
	if err != nil || existing == nil {
		return
	}

	qtyDec := decimal.NewFromInt(qty)
	proceeds := fillPrice.Mul(qtyDec)
	newQty := decimal.NewFromFloat(existing.Quantity).Sub(qtyDec)

	if newQty.Sign() <= 0 {
		if err := e.store.UpsertPosition(ctx, storeclient.Position{AlgorithmID: algo.ID, Symbol: symbol, Quantity: 0, AvgEntryPrice: 0}); err != nil {
			e.log.Warnf("settleSell: position clear failed for %s: %v", symbol, err)
		}
	} else {
		if err := e.store.UpsertPosition(ctx, storeclient.Position{
			AlgorithmID:   algo.ID,
			Symbol:        symbol,
			Quantity:      newQty.InexactFloat64(),
			AvgEntryPrice: existing.AvgEntryPrice,
		}); err != nil {
			e.log.Warnf("settleSell: position write failed for %s: %v", symbol, err)
		}
	}

	newCash := decimal.NewFromFloat(algo.Cash).Add(proceeds)
	if err := e.store.UpdateAlgorithmCash(ctx, algo.ID, newCash.InexactFloat64()); err != nil {
		e.log.Warnf("settleSell: cash write failed for %s: %v", algo.ID, err)
	}
}

func (e *Engine) snapshotAll(ctx context.Context) error {
	algorithms, err := e.store.ListEnabledAlgorithms(ctx)
	if err != nil {
		return err
	}
	for _, algo := range algorithms {
		if err := e.snapshotOne(ctx, algo.ID, "hourly"); err != nil {
			e.log.Warnf("snapshot failed for %s: %v", algo.ID, err)
		}
	}
	e.log.Infof("created %d snapshots (trigger=hourly)", len(algorithms))
	return nil
}

func (e *Engine) snapshotOne(ctx context.Context, algorithmID, trigger string) error {
	positions, err := e.positionsFor(ctx, algorithmID)
	if err != nil {
		return err
	}
	algo, err := e.algorithmByID(ctx, algorithmID)
	if err != nil {
		return err
	}

	var totalValue decimal.Decimal
	for _, p := range positions {
		totalValue = totalValue.Add(decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.AvgEntryPrice)))
	}
	cash := decimal.NewFromFloat(algo.Cash)
	equity := cash.Add(totalValue)
	today := time.Now().UTC().Format("2006-01-02")

	dailyPnL := decimal.Zero
	if prev, ok, err := e.previousDaySnapshot(ctx, algorithmID, today); err != nil {
		e.log.Warnf("previous-day snapshot lookup failed for %s: %v", algorithmID, err)
	} else if ok {
		dailyPnL = equity.Sub(decimal.NewFromFloat(prev.Equity))
	}

	return e.store.CreateSnapshot(ctx, storeclient.Snapshot{
		AlgorithmID:  algorithmID,
		SnapshotDate: today,
		Equity:       equity.InexactFloat64(),
		Cash:         cash.InexactFloat64(),
		BuyingPower:  cash.InexactFloat64(),
		DailyPnL:     dailyPnL.InexactFloat64(),
		TotalPnL:     equity.Sub(cash).InexactFloat64(),
		Trigger:      trigger,
	})
}

// previousDaySnapshot returns the most recent prior snapshot for
// algorithmID whose snapshot_date differs from today, per DESIGN.md's
// "Snapshot daily P&L" decision: daily_pnl = current.equity -
// previousDay.equity when such a snapshot exists, else 0.
func (e *Engine) previousDaySnapshot(ctx context.Context, algorithmID, today string) (storeclient.Snapshot, bool, error) {
	snapshots, err := e.store.ListSnapshots(ctx, algorithmID)
	if err != nil {
		return storeclient.Snapshot{}, false, err
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].SnapshotDate != today {
			return snapshots[i], true, nil
		}
	}
	return storeclient.Snapshot{}, false, nil
}

// positionsFor and algorithmByID are thin lookups over the APIs
// storeclient already exposes: positionsFor calls GetPosition once per
// symbol in the algorithm's own symbol list, and algorithmByID filters
// ListEnabledAlgorithms, since the client has no single-algorithm read.
func (e *Engine) positionsFor(ctx context.Context, algorithmID string) ([]storeclient.Position, error) {
	algo, err := e.algorithmByID(ctx, algorithmID)
	if err != nil {
		return nil, err
	}
	var positions []storeclient.Position
	for _, symbol := range algo.Symbols {
		p, err := e.store.GetPosition(ctx, algorithmID, symbol)
		if err != nil {
			return nil, err
		}
		if p != nil {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

func (e *Engine) algorithmByID(ctx context.Context, algorithmID string) (storeclient.Algorithm, error) {
	algorithms, err := e.store.ListEnabledAlgorithms(ctx)
	if err != nil {
		return storeclient.Algorithm{}, err
	}
	for _, a := range algorithms {
		if a.ID == algorithmID {
			return a, nil
		}
	}
	return storeclient.Algorithm{}, fmt.Errorf("algorithm %s not found among enabled algorithms", algorithmID)
}
