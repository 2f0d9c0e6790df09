package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

// DataClient is the subset of *marketdata.Client the provider calls.
type DataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
}

// MarketData builds snapshots from Alpaca REST bars and the latest quote.
// When a streaming bar source is attached and already holds enough bars
// for a ticker, those bars are used and only the quote goes to REST.
type MarketData struct {
	client    DataClient
	feed      marketdata.Feed
	timeframe marketdata.TimeFrame
	barWidth  time.Duration
	lookback  int
	live      domrepo.BarSource
	minLive   int
	now       func() time.Time
	logger    *applogger.Logger
}

var _ domrepo.MarketData = (*MarketData)(nil)

type Option func(*MarketData)

// WithLiveBars prefers bars from src once it holds at least minBars.
func WithLiveBars(src domrepo.BarSource, minBars int) Option {
	return func(m *MarketData) {
		m.live = src
		m.minLive = minBars
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(m *MarketData) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMarketData(client DataClient, feed string, tf domrepo.Timeframe, lookback int, opts ...Option) *MarketData {
	if lookback <= 0 {
		lookback = 30
	}
	m := &MarketData{
		client:    client,
		feed:      ParseFeed(feed),
		timeframe: marketdata.NewTimeFrame(tf.Minutes(), marketdata.Min),
		barWidth:  time.Duration(tf.Minutes()) * time.Minute,
		lookback:  lookback,
		now:       time.Now,
		logger:    applogger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewDataClient builds the SDK client from credentials.
func NewDataClient(apiKey, apiSecret, baseURL string) *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

func ParseFeed(feed string) marketdata.Feed {
	switch strings.ToLower(feed) {
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}

func (m *MarketData) Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error) {
	ticker = strings.ToUpper(ticker)
	var (
		bars  []models.Bar
		quote *models.QuoteSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := m.bars(gctx, ticker)
		if err != nil {
			return err
		}
		bars = b
		return nil
	})
	g.Go(func() error {
		q, err := call(gctx, func() (*marketdata.Quote, error) {
			return m.client.GetLatestQuote(ticker, marketdata.GetLatestQuoteRequest{Feed: m.feed})
		})
		if err != nil {
			// A missing quote is a data-quality rejection, not a fetch failure.
			if gctx.Err() == nil {
				m.logger.Warn("latest quote unavailable", applogger.String("ticker", ticker), applogger.Error(err))
			}
			return nil
		}
		if q != nil {
			qs, _ := models.NewQuoteSnapshot(q.BidPrice, q.AskPrice)
			quote = &qs
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.MarketSnapshot{
		Ticker:    ticker,
		Bars:      bars,
		Quote:     quote,
		FetchedAt: m.now(),
	}, nil
}

func (m *MarketData) bars(ctx context.Context, ticker string) ([]models.Bar, error) {
	if b, ok := m.liveBars(ctx, ticker); ok {
		return b, nil
	}

	end := m.now()
	start := end.Add(-time.Duration(m.lookback) * m.barWidth * 3)
	raw, err := call(ctx, func() ([]marketdata.Bar, error) {
		return m.client.GetBars(ticker, marketdata.GetBarsRequest{
			TimeFrame: m.timeframe,
			Start:     start,
			End:       end,
			Feed:      m.feed,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", ticker, err)
	}

	out := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, models.Bar{Timestamp: b.Timestamp, Close: b.Close, Volume: float64(b.Volume)})
	}
	models.SortBars(out)
	if len(out) > m.lookback {
		out = out[len(out)-m.lookback:]
	}
	return out, nil
}

// liveBars returns streamed bars when there are at least minLive of them and
// the newest one started within two bar widths of now. A series that stopped
// updating (stream down, symbol halted) falls back to REST.
func (m *MarketData) liveBars(ctx context.Context, ticker string) ([]models.Bar, bool) {
	if m.live == nil {
		return nil, false
	}
	b, err := m.live.Bars(ctx, ticker, m.lookback)
	if err != nil || len(b) == 0 || len(b) < m.minLive {
		return nil, false
	}
	age := m.now().Sub(b[len(b)-1].Timestamp)
	if age > 2*m.barWidth {
		m.logger.Debug("live bars stale, using REST",
			applogger.String("ticker", ticker), applogger.Duration("age_ms", age))
		return nil, false
	}
	return b, true
}

// call runs a blocking SDK request and gives up when ctx ends. The SDK
// call itself keeps running until its own HTTP timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
