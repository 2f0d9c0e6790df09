package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
)

type fakeData struct {
	bars     []marketdata.Bar
	barsErr  error
	quote    *marketdata.Quote
	quoteErr error
	barCalls int
	lastReq  marketdata.GetBarsRequest
	delay    time.Duration
}

func (f *fakeData) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barCalls++
	f.lastReq = req
	time.Sleep(f.delay)
	return f.bars, f.barsErr
}

func (f *fakeData) GetLatestQuote(string, marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error) {
	return f.quote, f.quoteErr
}

func minuteBars(closes ...float64) []marketdata.Bar {
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	out := make([]marketdata.Bar, len(closes))
	// Reverse order to check sorting.
	for i, c := range closes {
		out[len(closes)-1-i] = marketdata.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return out
}

func TestSnapshotBuildsBarsAndQuote(t *testing.T) {
	f := &fakeData{
		bars:  minuteBars(100, 101, 102),
		quote: &marketdata.Quote{BidPrice: 101.9, AskPrice: 102.1},
	}
	m := NewMarketData(f, "sip", domrepo.TF1m, 2)

	snap, err := m.Snapshot(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Ticker != "AAPL" || len(snap.Bars) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Bars[0].Close != 101 || snap.Bars[1].Close != 102 {
		t.Fatalf("bars not sorted and trimmed: %+v", snap.Bars)
	}
	if snap.Quote == nil || snap.Quote.MidPrice != 102 {
		t.Fatalf("quote = %+v", snap.Quote)
	}
	if f.lastReq.Feed != marketdata.SIP {
		t.Fatalf("feed = %v", f.lastReq.Feed)
	}
}

func TestSnapshotQuoteFailureLeavesQuoteNil(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), quoteErr: errors.New("404")}
	snap, err := NewMarketData(f, "iex", domrepo.TF1m, 30).Snapshot(context.Background(), "X")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Quote != nil {
		t.Fatalf("expected nil quote")
	}
}

func TestSnapshotInvalidQuoteKept(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), quote: &marketdata.Quote{BidPrice: 0, AskPrice: 2}}
	snap, err := NewMarketData(f, "iex", domrepo.TF1m, 30).Snapshot(context.Background(), "X")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Quote == nil || snap.Quote.Valid() {
		t.Fatalf("expected invalid quote to be passed through, got %+v", snap.Quote)
	}
}

func TestSnapshotBarsError(t *testing.T) {
	f := &fakeData{barsErr: errors.New("429 too many requests")}
	if _, err := NewMarketData(f, "iex", domrepo.TF1m, 30).Snapshot(context.Background(), "X"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSnapshotHonoursContext(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), delay: 200 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := NewMarketData(f, "iex", domrepo.TF1m, 30).Snapshot(ctx, "X"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

type liveBars struct{ bars []models.Bar }

func (l liveBars) Bars(context.Context, string, int) ([]models.Bar, error) { return l.bars, nil }

var liveNow = time.Date(2024, 3, 15, 15, 0, 30, 0, time.UTC)

// barsEndingAt returns one-minute bars whose newest starts at last.
func barsEndingAt(last time.Time, closes ...float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{Timestamp: last.Add(-time.Duration(len(closes)-1-i) * time.Minute), Close: c}
	}
	return out
}

func TestSnapshotPrefersLiveBars(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), quote: &marketdata.Quote{BidPrice: 9, AskPrice: 10}}
	live := liveBars{bars: barsEndingAt(liveNow.Truncate(time.Minute), 7, 8, 9)}
	m := NewMarketData(f, "iex", domrepo.TF1m, 30, WithLiveBars(live, 3))
	m.now = func() time.Time { return liveNow }

	snap, err := m.Snapshot(context.Background(), "X")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if f.barCalls != 0 || snap.Bars[2].Close != 9 {
		t.Fatalf("expected live bars, rest calls=%d bars=%+v", f.barCalls, snap.Bars)
	}

	m = NewMarketData(f, "iex", domrepo.TF1m, 30, WithLiveBars(live, 5))
	m.now = func() time.Time { return liveNow }
	if _, err := m.Snapshot(context.Background(), "X"); err != nil || f.barCalls != 1 {
		t.Fatalf("short live history should fall back to REST, calls=%d err=%v", f.barCalls, err)
	}
}

func TestSnapshotStaleLiveBarsFallBackToREST(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), quote: &marketdata.Quote{BidPrice: 9, AskPrice: 10}}
	live := liveBars{bars: barsEndingAt(liveNow.Add(-6*time.Hour), 7, 8, 9)}
	m := NewMarketData(f, "iex", domrepo.TF1m, 30, WithLiveBars(live, 3))
	m.now = func() time.Time { return liveNow }

	snap, err := m.Snapshot(context.Background(), "X")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if f.barCalls != 1 || snap.Bars[len(snap.Bars)-1].Close != 3 {
		t.Fatalf("stale live bars used, rest calls=%d bars=%+v", f.barCalls, snap.Bars)
	}
}

func TestSnapshotLiveBarsWithinTwoWidthsAreFresh(t *testing.T) {
	f := &fakeData{bars: minuteBars(1, 2, 3), quote: &marketdata.Quote{BidPrice: 9, AskPrice: 10}}
	// Newest bar started 90s ago: the bar before the current one.
	live := liveBars{bars: barsEndingAt(liveNow.Add(-90*time.Second), 7, 8, 9)}
	m := NewMarketData(f, "iex", domrepo.TF5m, 30, WithLiveBars(live, 3))
	m.now = func() time.Time { return liveNow }

	if _, err := m.Snapshot(context.Background(), "X"); err != nil || f.barCalls != 0 {
		t.Fatalf("expected live bars, rest calls=%d err=%v", f.barCalls, err)
	}
}

type fakeClock struct {
	clk *alpaca.Clock
	err error
}

func (f fakeClock) GetClock() (*alpaca.Clock, error) { return f.clk, f.err }

func TestClock(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	c := NewClock(fakeClock{clk: &alpaca.Clock{Timestamp: now, IsOpen: true}})
	clk, err := c.Clock(context.Background())
	if err != nil || !clk.IsOpen || !clk.Timestamp.Equal(now) {
		t.Fatalf("clock = %+v, %v", clk, err)
	}
	if _, err := NewClock(fakeClock{err: errors.New("401")}).Clock(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
