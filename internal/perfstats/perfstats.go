// Package perfstats is the performance-analytics layer: pure
// functions over equity snapshots and trade records, with no store or
// network dependency of their own. Grounded on
// original_source/dashboard-api/src/dashboard_api/metrics.py.
package perfstats

import "math"

// EquityPoint is the subset of a snapshot these functions read.
type EquityPoint struct {
	Equity float64
}

// TradeOutcome is the subset of a trade record win_rate reads.
type TradeOutcome struct {
	PnL float64
}

// TotalReturn is the percent change from initial to final equity.
// Returns 0 if initial <= 0.
func TotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// DailyReturns computes the per-period fractional return between
// consecutive snapshots, skipping any period whose prior equity is
// not strictly positive.
func DailyReturns(snapshots []EquityPoint) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].Equity
		curr := snapshots[i].Equity
		if prev > 0 {
			returns = append(returns, (curr-prev)/prev)
		}
	}
	return returns
}

// SharpeRatio is the annualized Sharpe ratio over a daily-return
// series. Standard deviation is population (divide by N), matching
// the source's definition exactly, not the Bessel-corrected sample
// stdev used elsewhere in this module.
func SharpeRatio(returns []float64, annualizationFactor float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (mean / std) * math.Sqrt(annualizationFactor)
}

// DefaultAnnualizationFactor is the standard US equities trading-days
// count used when the caller doesn't override it.
const DefaultAnnualizationFactor = 252

// MaxDrawdown is the largest running-peak-to-trough fractional decline
// across an ordered snapshot sequence. 0 for an empty sequence or a
// non-decreasing series.
func MaxDrawdown(snapshots []EquityPoint) float64 {
	if len(snapshots) == 0 {
		return 0
	}
	peak := snapshots[0].Equity
	var maxDrawdown float64
	for _, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak > 0 {
			drawdown := (peak - s.Equity) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}

// WinRate is the fraction of trades with positive PnL. 0 for an empty
// trade list.
func WinRate(trades []TradeOutcome) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}
