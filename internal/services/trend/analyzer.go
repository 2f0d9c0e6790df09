package trend

import (
	"fmt"
	"math"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/service"
)

const (
	DefaultWindow = 5
	MinBars       = 3

	changeWeight       = 0.7
	consistencyWeight  = 0.3
	choppyThreshold    = 70.0
	choppyDampening    = 0.3
	continuationDeltas = 3

	InsufficientData = "insufficient data"
)

var _ service.TrendAnalyzer = (*Analyzer)(nil)

type Analyzer struct {
	window int
}

func NewAnalyzer(window int) *Analyzer {
	if window < MinBars {
		window = DefaultWindow
	}
	return &Analyzer{window: window}
}

func (a *Analyzer) Window() int { return a.window }

// Analyze scores the last window bars. Fewer than MinBars bars yield zeroed
// momentum and continuation with an "insufficient data" explanation.
func (a *Analyzer) Analyze(bars []models.Bar) models.TrendMetrics {
	win := a.tail(bars)
	peak, bottom := extremes(win)
	if len(win) < MinBars {
		return models.TrendMetrics{PeakPrice: peak, BottomPrice: bottom, Explanation: InsufficientData}
	}

	first, last := win[0].Close, win[len(win)-1].Close
	change := pct(last-first, first)

	deltas := make([]float64, len(win)-1)
	up, down := 0, 0
	for i := 1; i < len(win); i++ {
		d := win[i].Close - win[i-1].Close
		deltas[i-1] = d
		switch {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}
	consistency := pct(float64(up-down), float64(len(deltas)))

	momentum := changeWeight*change + consistencyWeight*consistency
	if math.Abs(consistency) < choppyThreshold {
		momentum *= choppyDampening
	}
	cont := continuation(deltas, change)

	return models.TrendMetrics{
		MomentumScore:     momentum,
		ContinuationScore: cont,
		PeakPrice:         peak,
		BottomPrice:       bottom,
		Explanation: fmt.Sprintf("change=%.2f%% consistency=%.0f%% (up=%d down=%d of %d moves) momentum=%.2f continuation=%.2f",
			change, consistency, up, down, len(deltas), momentum, cont),
	}
}

// AnalyzePosition scores the window like Analyze but measures peak and bottom
// only over bars strictly after entryTime. With no such bar both equal entryPrice.
func (a *Analyzer) AnalyzePosition(bars []models.Bar, entryTime time.Time, entryPrice float64) models.TrendMetrics {
	m := a.Analyze(bars)

	var post []models.Bar
	for _, b := range bars {
		if b.Timestamp.After(entryTime) {
			post = append(post, b)
		}
	}
	if len(post) == 0 {
		m.PeakPrice, m.BottomPrice = entryPrice, entryPrice
		return m
	}
	m.PeakPrice, m.BottomPrice = extremes(post)
	return m
}

func (a *Analyzer) tail(bars []models.Bar) []models.Bar {
	if len(bars) > a.window {
		return bars[len(bars)-a.window:]
	}
	return bars
}

// continuation is the share of the final deltas that move with the overall change.
func continuation(deltas []float64, change float64) float64 {
	if change == 0 || len(deltas) == 0 {
		return 0
	}
	k := continuationDeltas
	if len(deltas) < k {
		k = len(deltas)
	}
	agree := 0
	for _, d := range deltas[len(deltas)-k:] {
		if (change > 0 && d > 0) || (change < 0 && d < 0) {
			agree++
		}
	}
	return clamp01(float64(agree) / float64(k))
}

func extremes(bars []models.Bar) (peak, bottom float64) {
	for i, b := range bars {
		if i == 0 || b.Close > peak {
			peak = b.Close
		}
		if i == 0 || b.Close < bottom {
			bottom = b.Close
		}
	}
	return peak, bottom
}

func pct(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
