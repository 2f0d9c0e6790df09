package barbook

import (
	"context"
	"testing"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

func trade(sym string, at time.Time, price, vol float64) *models.Trade {
	return &models.Trade{Symbol: sym, Timestamp: at.UnixMilli(), Price: price, Volume: vol}
}

func TestBookFoldsTradesIntoBars(t *testing.T) {
	ctx := context.Background()
	b := New(time.Minute, 3)
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	steps := []struct {
		at    time.Duration
		price float64
	}{
		{5 * time.Second, 100},
		{40 * time.Second, 101},
		{65 * time.Second, 102},
		{30 * time.Second, 99}, // late print for a closed bar
		{125 * time.Second, 103},
		{185 * time.Second, 104},
	}
	for _, s := range steps {
		if err := b.Process(ctx, trade("aapl", base.Add(s.at), s.price, 10)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	bars, err := b.Bars(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("bars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars after trim, got %d", len(bars))
	}
	want := []float64{102, 103, 104}
	for i, w := range want {
		if bars[i].Close != w {
			t.Fatalf("bar %d close = %v, want %v", i, bars[i].Close, w)
		}
	}
	if !bars[0].Timestamp.Equal(base.Add(time.Minute)) {
		t.Fatalf("bar start = %v", bars[0].Timestamp)
	}

	last2, _ := b.Bars(ctx, "AAPL", 2)
	if len(last2) != 2 || last2[1].Close != 104 {
		t.Fatalf("last2 = %+v", last2)
	}
}

func TestBookAccumulatesVolume(t *testing.T) {
	ctx := context.Background()
	b := New(time.Minute, 10)
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	_ = b.Process(ctx, trade("MSFT", base, 400, 5))
	_ = b.Process(ctx, trade("MSFT", base.Add(10*time.Second), 401, 7))

	bars, _ := b.Bars(ctx, "msft", 0)
	if len(bars) != 1 || bars[0].Volume != 12 || bars[0].Close != 401 {
		t.Fatalf("bars = %+v", bars)
	}
	if b.Symbols() != 1 {
		t.Fatalf("symbols = %d", b.Symbols())
	}
}

func TestBookRejectsInvalidTrade(t *testing.T) {
	if err := New(time.Minute, 1).Process(context.Background(), &models.Trade{Symbol: "X"}); err == nil {
		t.Fatalf("expected error")
	}
}
