package models

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuote = errors.New("invalid quote")

// Bar is one closing price observation. Sequences are ordered oldest first.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close_price"`
	Volume    float64   `json:"volume,omitempty"`
}

// Trade is a single print from a streaming feed. Timestamp is unix milliseconds.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// QuoteSnapshot is the best bid/ask at fetch time.
type QuoteSnapshot struct {
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	MidPrice      float64 `json:"mid_price"`
	SpreadPercent float64 `json:"spread_percent"`
}

// NewQuoteSnapshot derives mid price and spread from a bid/ask pair.
func NewQuoteSnapshot(bid, ask float64) (QuoteSnapshot, error) {
	if bid <= 0 || ask <= 0 || ask < bid {
		return QuoteSnapshot{Bid: bid, Ask: ask}, ErrInvalidQuote
	}
	b := decimal.NewFromFloat(bid)
	a := decimal.NewFromFloat(ask)
	mid := b.Add(a).Div(decimal.NewFromInt(2))
	spread := a.Sub(b).Div(mid).Mul(decimal.NewFromInt(100))

	return QuoteSnapshot{
		Bid:           bid,
		Ask:           ask,
		MidPrice:      mid.InexactFloat64(),
		SpreadPercent: spread.Round(6).InexactFloat64(),
	}, nil
}

func (q QuoteSnapshot) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.MidPrice > 0
}

// MarketSnapshot is everything fetched for one ticker in one cycle.
type MarketSnapshot struct {
	Ticker    string
	Bars      []Bar
	Quote     *QuoteSnapshot
	FetchedAt time.Time
}

// CurrentPrice prefers the quote mid price and falls back to the last close.
func (s *MarketSnapshot) CurrentPrice() float64 {
	if s == nil {
		return 0
	}
	if s.Quote != nil && s.Quote.Valid() {
		return s.Quote.MidPrice
	}
	if n := len(s.Bars); n > 0 {
		return s.Bars[n-1].Close
	}
	return 0
}

// NormalizeBars turns an unordered timestamp to price mapping into an ordered sequence.
func NormalizeBars(prices map[time.Time]float64) []Bar {
	bars := make([]Bar, 0, len(prices))
	for ts, p := range prices {
		bars = append(bars, Bar{Timestamp: ts, Close: p})
	}
	SortBars(bars)
	return bars
}

func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
}

// Closes extracts close prices.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MarketClock is the exchange clock as reported by the broker.
type MarketClock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
