package features

import (
	"math"
	"testing"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
)

func bars(closes ...float64) []models.Bar {
	base := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return out
}

func TestComputeLogReturns(t *testing.T) {
	r := ComputeLogReturns(bars(100, 110, 0, 121))
	if len(r) != 3 {
		t.Fatalf("len = %d", len(r))
	}
	if math.Abs(r[0]-math.Log(1.1)) > 1e-12 || r[1] != 0 || r[2] != 0 {
		t.Fatalf("returns = %v", r)
	}
	if ComputeLogReturns(bars(1)) != nil {
		t.Fatalf("expected nil for a single bar")
	}
}

func TestRealizedVolatilityFlatSeries(t *testing.T) {
	if v := RealizedVolatility([]float64{0.01, 0.01, 0.01}, 3, 100); v != 0 {
		t.Fatalf("constant returns should have zero volatility, got %v", v)
	}
	if v := RealizedVolatility([]float64{0.01}, 3, 100); v != 0 {
		t.Fatalf("short series should yield 0, got %v", v)
	}
}

func TestTechnicalIndicatorsWithoutSnapshot(t *testing.T) {
	ind := TechnicalIndicators(nil, models.TrendMetrics{MomentumScore: 4}, repository.TF1m)
	if ind["momentum_score"] != 4 || ind["bar_count"] != 0 {
		t.Fatalf("indicators = %v", ind)
	}
}

func TestTechnicalIndicatorsIncludesQuote(t *testing.T) {
	q, _ := models.NewQuoteSnapshot(99, 101)
	snap := &models.MarketSnapshot{Ticker: "AAPL", Bars: bars(100, 101, 102), Quote: &q}
	ind := TechnicalIndicators(snap, models.TrendMetrics{}, repository.TF1m)
	if ind["spread_percent"] != 2 || ind["current_price"] != 100 || ind["bar_count"] != 3 {
		t.Fatalf("indicators = %v", ind)
	}
	if _, ok := ind["realized_volatility"]; !ok {
		t.Fatalf("missing realized_volatility")
	}
}
