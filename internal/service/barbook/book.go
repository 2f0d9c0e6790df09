package barbook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/util"
)

// Book folds streamed trades into fixed-width closing-price bars per symbol.
// The newest bar is still forming; its close is the last trade seen.
type Book struct {
	width   time.Duration
	maxBars int

	mu   sync.RWMutex
	bars map[string][]models.Bar
}

var _ domrepo.BarSource = (*Book)(nil)

func New(width time.Duration, maxBars int) *Book {
	if width <= 0 {
		width = time.Minute
	}
	if maxBars <= 0 {
		maxBars = 120
	}
	return &Book{width: width, maxBars: maxBars, bars: make(map[string][]models.Bar)}
}

// Process adds one trade. Trades older than the current bar are ignored.
func (b *Book) Process(_ context.Context, t *models.Trade) error {
	if t == nil || t.Price <= 0 {
		return fmt.Errorf("invalid trade")
	}
	sym := strings.ToUpper(t.Symbol)
	start := util.BarStart(time.UnixMilli(t.Timestamp).UTC(), b.width)

	b.mu.Lock()
	defer b.mu.Unlock()
	series := b.bars[sym]
	n := len(series)
	switch {
	case n > 0 && series[n-1].Timestamp.Equal(start):
		series[n-1].Close = t.Price
		series[n-1].Volume += t.Volume
	case n > 0 && start.Before(series[n-1].Timestamp):
		return nil
	default:
		series = append(series, models.Bar{Timestamp: start, Close: t.Price, Volume: t.Volume})
		if len(series) > b.maxBars {
			series = append(series[:0:0], series[len(series)-b.maxBars:]...)
		}
	}
	b.bars[sym] = series
	return nil
}

// Bars returns up to n of the most recent bars, oldest first.
func (b *Book) Bars(_ context.Context, ticker string, n int) ([]models.Bar, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	series := b.bars[strings.ToUpper(ticker)]
	if n <= 0 || n > len(series) {
		n = len(series)
	}
	out := make([]models.Bar, n)
	copy(out, series[len(series)-n:])
	return out, nil
}

func (b *Book) Symbols() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars)
}
