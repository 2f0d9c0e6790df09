package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

var baseTime = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func series(closes ...float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{Timestamp: baseTime.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return out
}

func snapshot(ticker string, bid, ask float64, closes ...float64) *models.MarketSnapshot {
	q, err := models.NewQuoteSnapshot(bid, ask)
	if err != nil {
		panic(err)
	}
	return &models.MarketSnapshot{Ticker: ticker, Bars: series(closes...), Quote: &q, FetchedAt: baseTime}
}

// enterableLong passes every rule for a long entry: a mostly rising window
// (momentum about 4.9) with the quote well below the peak.
func enterableLong(ticker string) *models.MarketSnapshot {
	return snapshot(ticker, 100.45, 100.55, 100, 99, 100, 101, 102)
}

type fakeMarket struct {
	mu       sync.Mutex
	snaps    map[string]*models.MarketSnapshot
	errs     map[string]error
	delays   map[string]time.Duration
	calls    int32
	inFlight int32
	peak     int32
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		snaps:  map[string]*models.MarketSnapshot{},
		errs:   map[string]error{},
		delays: map[string]time.Duration{},
	}
}

func (m *fakeMarket) Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		p := atomic.LoadInt32(&m.peak)
		if n <= p || atomic.CompareAndSwapInt32(&m.peak, p, n) {
			break
		}
	}

	m.mu.Lock()
	snap, err, delay := m.snaps[ticker], m.errs[ticker], m.delays[ticker]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("unknown ticker")
	}
	return snap, nil
}

type fakeStats struct {
	mu         sync.Mutex
	stats      map[string]models.IntradayStats
	getErr     error
	incErr     error
	increments map[string]int
}

func newFakeStats() *fakeStats {
	return &fakeStats{stats: map[string]models.IntradayStats{}, increments: map[string]int{}}
}

func (s *fakeStats) Get(_ context.Context, ticker, indicator string) (*models.IntradayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.stats[ticker+"/"+indicator]
	if !ok {
		return nil, models.ErrStatsNotFound
	}
	return &st, nil
}

func (s *fakeStats) Upsert(_ context.Context, ticker, indicator string, o models.Outcome) (*models.IntradayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[ticker+"/"+indicator]
	st.Ticker, st.Indicator = ticker, indicator
	if o == models.OutcomeSuccess {
		st.Successes++
	} else {
		st.Failures++
	}
	s.stats[ticker+"/"+indicator] = st
	return &st, nil
}

func (s *fakeStats) IncrementDecisions(_ context.Context, ticker, indicator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incErr != nil {
		return s.incErr
	}
	s.increments[ticker+"/"+indicator]++
	return nil
}

type fakeAudit struct {
	mu             sync.Mutex
	rejectionCalls int
	decisionCalls  int
	rejections     []models.RejectionRecord
	decisions      []models.BanditDecision
	err            error
}

func (a *fakeAudit) StoreRejections(_ context.Context, r []models.RejectionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejectionCalls++
	a.rejections = append(a.rejections, r...)
	return a.err
}

func (a *fakeAudit) StoreDecisions(_ context.Context, d []models.BanditDecision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisionCalls++
	a.decisions = append(a.decisions, d...)
	return a.err
}

func (a *fakeAudit) Init(context.Context) error   { return nil }
func (a *fakeAudit) Health(context.Context) error { return nil }
func (a *fakeAudit) Close() error                 { return nil }

type stubGate struct {
	mu    sync.Mutex
	ok    bool
	calls [][2]int
}

func (g *stubGate) CalculateDecision(s, f int, _ float64, action models.Action) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, [2]int{s, f})
	if action.IsExit() {
		return true, "exit action, no gating"
	}
	if g.ok {
		return true, "stub admit"
	}
	return false, "stub reject"
}

type fakeMetrics struct {
	mu     sync.Mutex
	states map[string]int
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{states: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordState(state, _ string) {
	m.mu.Lock()
	m.states[state]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordLatency(string, float64) {}
func (m *fakeMetrics) RecordCycle(int, int)          {}
