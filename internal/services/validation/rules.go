package validation

import (
	"fmt"
	"math"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

// Thresholds for the technical rules. Percentages are in percent units.
type Thresholds struct {
	MinBars          int
	MaxSpread        float64
	MinContinuation  float64
	ExtremeThreshold float64
	MinMomentum      float64
	MaxMomentum      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBars:          3,
		MaxSpread:        2.0,
		MinContinuation:  0.7,
		ExtremeThreshold: 1.0,
		MinMomentum:      3.0,
		MaxMomentum:      10.0,
	}
}

type Rule interface {
	Name() string
	Evaluate(in models.ValidationInput) models.ValidationOutcome
}

type DataQualityRule struct{ MinBars int }

func (DataQualityRule) Name() string { return "data_quality" }

func (r DataQualityRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	if len(in.Bars) < r.MinBars {
		return models.BlockBoth(fmt.Sprintf("data quality: only %d bars, need at least %d", len(in.Bars), r.MinBars))
	}
	if in.Quote == nil {
		return models.BlockBoth("data quality: quote missing")
	}
	if !in.Quote.Valid() {
		return models.BlockBoth(fmt.Sprintf("data quality: zero or invalid quote (bid=%.4f ask=%.4f)", in.Quote.Bid, in.Quote.Ask))
	}
	return models.Pass()
}

type LiquidityRule struct{ MaxSpread float64 }

func (LiquidityRule) Name() string { return "liquidity" }

func (r LiquidityRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	if in.Quote != nil && in.Quote.SpreadPercent > r.MaxSpread {
		return models.BlockBoth(fmt.Sprintf("illiquid: spread=%.2f%% exceeds max %g%%", in.Quote.SpreadPercent, r.MaxSpread))
	}
	return models.Pass()
}

// TrendDirectionRule blocks the direction opposing the trend and leaves the other to later rules.
type TrendDirectionRule struct{}

func (TrendDirectionRule) Name() string { return "trend_direction" }

func (TrendDirectionRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	m := in.Metrics.MomentumScore
	switch {
	case m < 0:
		return models.BlockLong(fmt.Sprintf("downward trend, momentum=%.2f%%", m))
	case m > 0:
		return models.BlockShort(fmt.Sprintf("upward trend, momentum=%.2f%%", m))
	}
	return models.Pass()
}

type ContinuationRule struct{ MinContinuation float64 }

func (ContinuationRule) Name() string { return "continuation" }

func (r ContinuationRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	dir := trendDirection(in.Metrics)
	if dir == models.NoDirection || in.Metrics.ContinuationScore >= r.MinContinuation {
		return models.Pass()
	}
	return models.Block(dir, fmt.Sprintf("%s trend not continuing strongly: continuation=%.2f < %.2f",
		trendWord(dir), in.Metrics.ContinuationScore, r.MinContinuation))
}

// PriceExtremeRule blocks entries chasing the window extreme in the trend direction.
type PriceExtremeRule struct{ Threshold float64 }

func (PriceExtremeRule) Name() string { return "price_extreme" }

func (r PriceExtremeRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	price := in.CurrentPrice
	if price <= 0 && len(in.Bars) > 0 {
		price = in.Bars[len(in.Bars)-1].Close
	}
	m := in.Metrics

	switch trendDirection(m) {
	case models.Long:
		if near(price, m.PeakPrice, r.Threshold) {
			return models.BlockLong(fmt.Sprintf("at/near peak: price=%.2f peak=%.2f (within %g%%)", price, m.PeakPrice, r.Threshold))
		}
	case models.Short:
		if near(price, m.BottomPrice, r.Threshold) {
			return models.BlockShort(fmt.Sprintf("at/near bottom: price=%.2f bottom=%.2f (within %g%%)", price, m.BottomPrice, r.Threshold))
		}
	}
	return models.Pass()
}

type MomentumThresholdRule struct {
	Min float64
	Max float64
}

func (MomentumThresholdRule) Name() string { return "momentum_threshold" }

func (r MomentumThresholdRule) Evaluate(in models.ValidationInput) models.ValidationOutcome {
	m := in.Metrics.MomentumScore
	abs := math.Abs(m)
	switch {
	case abs < r.Min:
		return models.BlockEach(
			fmt.Sprintf("weak trend for long entry: |momentum|=%.2f%% below minimum %g%%", abs, r.Min),
			fmt.Sprintf("weak trend for short entry: |momentum|=%.2f%% below minimum %g%%", abs, r.Min),
		)
	case abs > r.Max:
		return models.BlockEach(
			fmt.Sprintf("excessive trend for long entry: momentum=%.2f%% above maximum %g%%", m, r.Max),
			fmt.Sprintf("excessive trend for short entry: momentum=%.2f%% above maximum %g%%", m, r.Max),
		)
	}
	return models.Pass()
}

func trendDirection(m models.TrendMetrics) models.Direction {
	switch {
	case m.MomentumScore > 0:
		return models.Long
	case m.MomentumScore < 0:
		return models.Short
	}
	return models.NoDirection
}

func trendWord(d models.Direction) string {
	if d == models.Short {
		return "downward"
	}
	return "upward"
}

// near reports whether price lies within thresholdPct percent of ref.
func near(price, ref, thresholdPct float64) bool {
	if ref <= 0 || price <= 0 {
		return false
	}
	return math.Abs((price-ref)/ref*100) <= thresholdPct
}
