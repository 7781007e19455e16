package strategy

import "math"

// Pure daily-bar functions used by the scheduled engine. Unlike the
// real-time variants these carry no state of their own: the scheduled
// engine holds position state in the dashboard store, not in the
// strategy instance.

// CalculateSMA returns the mean of the last period closes, or false
// if fewer than period closes are available.
func CalculateSMA(closes []float64, period int) (float64, bool) {
	if len(closes) < period || period <= 0 {
		return 0, false
	}
	window := closes[len(closes)-period:]
	return meanOf(window), true
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculateMomentum returns the percent change from start to end.
func CalculateMomentum(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return 100 * (end - start) / start
}

// ShouldBuySMACrossover: plain SMA comparison, no crossover-edge
// tracking (the daily-bar variant differs from the real-time one,
// spec.md §4.2.3).
func ShouldBuySMACrossover(shortSMA, longSMA float64, hasPosition bool) bool {
	return shortSMA > longSMA && !hasPosition
}

func ShouldSellSMACrossover(shortSMA, longSMA float64, hasPosition bool) bool {
	return shortSMA < longSMA && hasPosition
}

func ShouldBuyRSI(rsi, oversold float64, hasPosition bool) bool {
	return rsi < oversold && !hasPosition
}

func ShouldSellRSI(rsi, overbought float64, hasPosition bool) bool {
	return rsi > overbought && hasPosition
}

func ShouldBuyMomentum(momentumPct, thresholdPct float64, hasPosition bool) bool {
	return momentumPct > thresholdPct && !hasPosition
}

func ShouldSellMomentum(momentumPct, exitThresholdPct float64, hasPosition bool) bool {
	return momentumPct < -exitThresholdPct && hasPosition
}

// EvaluateSMACrossoverDaily evaluates the full SMA-crossover daily
// batch routine given a closes series, emitting at most one side.
func EvaluateSMACrossoverDaily(closes []float64, shortPeriod, longPeriod int, hasPosition bool) (Kind, bool) {
	shortSMA, ok := CalculateSMA(closes, shortPeriod)
	if !ok {
		return "", false
	}
	longSMA, ok := CalculateSMA(closes, longPeriod)
	if !ok {
		return "", false
	}
	if ShouldBuySMACrossover(shortSMA, longSMA, hasPosition) {
		return Buy, true
	}
	if ShouldSellSMACrossover(shortSMA, longSMA, hasPosition) {
		return Sell, true
	}
	return "", false
}

// EvaluateRSIDaily evaluates the RSI daily batch routine.
func EvaluateRSIDaily(closes []float64, period int, oversold, overbought float64, hasPosition bool) (Kind, bool) {
	if len(closes) < period+1 {
		return "", false
	}
	rsi := CalculateRSI(closes[len(closes)-(period+1):])
	if ShouldBuyRSI(rsi, oversold, hasPosition) {
		return Buy, true
	}
	if ShouldSellRSI(rsi, overbought, hasPosition) {
		return Sell, true
	}
	return "", false
}

// EvaluateMomentumDaily evaluates the momentum daily batch routine
// over a lookback window of bars.
func EvaluateMomentumDaily(closes []float64, lookback int, thresholdPct, exitThresholdPct float64, hasPosition bool) (Kind, bool) {
	if len(closes) < lookback+1 {
		return "", false
	}
	start := closes[len(closes)-1-lookback]
	end := closes[len(closes)-1]
	momentum := CalculateMomentum(start, end)
	if ShouldBuyMomentum(momentum, thresholdPct, hasPosition) {
		return Buy, true
	}
	if ShouldSellMomentum(momentum, exitThresholdPct, hasPosition) {
		return Sell, true
	}
	return "", false
}

// EvaluateBuyAndHoldDaily buys once per symbol if not already holding
// and not previously bought.
func EvaluateBuyAndHoldDaily(hasPosition, alreadyBought bool) (Kind, bool) {
	if hasPosition || alreadyBought {
		return "", false
	}
	return Buy, true
}

// meanStdOf returns the sample mean and sample (Bessel-corrected)
// standard deviation of values, matching the real-time indicator's
// definition so the daily variant reads the same way.
func meanStdOf(values []float64) (mean, std float64) {
	mean = meanOf(values)
	if len(values) < 2 {
		return mean, 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / float64(len(values)-1))
}

// EvaluateMeanReversionDaily evaluates the mean-reversion daily batch
// routine over the last windowDays closes.
func EvaluateMeanReversionDaily(closes []float64, windowDays int, stdThreshold, exitThreshold float64, hasPosition bool) (Kind, bool) {
	if len(closes) < windowDays || windowDays < 2 {
		return "", false
	}
	window := closes[len(closes)-windowDays:]
	mean, std := meanStdOf(window)
	if std == 0 {
		return "", false
	}
	price := closes[len(closes)-1]
	z := (price - mean) / std

	switch {
	case z < -stdThreshold && !hasPosition:
		return Buy, true
	case (abs(z) < exitThreshold || z > stdThreshold) && hasPosition:
		return Sell, true
	}
	return "", false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
