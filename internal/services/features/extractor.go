package features

import (
	"math"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
)

// ComputeLogReturns computes r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the last window returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range logReturns[len(logReturns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear counts regular-session bars (252 days x 390 minutes).
func BarsPerYear(tf repository.Timeframe) float64 {
	return 252 * 390 / float64(tf.Minutes())
}

// TechnicalIndicators flattens everything known about a ticker at rejection time.
func TechnicalIndicators(snap *models.MarketSnapshot, m models.TrendMetrics, tf repository.Timeframe) map[string]float64 {
	out := map[string]float64{
		"momentum_score":     m.MomentumScore,
		"continuation_score": m.ContinuationScore,
		"peak_price":         m.PeakPrice,
		"bottom_price":       m.BottomPrice,
	}
	if snap == nil {
		out["bar_count"] = 0
		return out
	}
	out["bar_count"] = float64(len(snap.Bars))
	out["current_price"] = snap.CurrentPrice()
	if snap.Quote != nil {
		out["bid"] = snap.Quote.Bid
		out["ask"] = snap.Quote.Ask
		out["mid_price"] = snap.Quote.MidPrice
		out["spread_percent"] = snap.Quote.SpreadPercent
	}

	returns := ComputeLogReturns(snap.Bars)
	if n := len(returns); n > 0 {
		out["last_log_return"] = returns[n-1]
		out["realized_volatility"] = RealizedVolatility(returns, n, BarsPerYear(tf))
	}
	return out
}
