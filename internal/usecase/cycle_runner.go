package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

var ErrMarketClosed = errors.New("market closed")

// CandidateSource supplies the tickers considered in each cycle.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]models.Candidate, error)
}

// StaticCandidates is a fixed watchlist.
type StaticCandidates []models.Candidate

func (s StaticCandidates) Candidates(context.Context) ([]models.Candidate, error) {
	out := make([]models.Candidate, len(s))
	copy(out, s)
	return out, nil
}

// CycleRunner drives RunCycle on a fixed cadence. A cycle that overruns the
// interval delays the next tick instead of overlapping it.
type CycleRunner struct {
	ctrl        *AdmissionController
	source      CandidateSource
	clock       domrepo.MarketClock
	interval    time.Duration
	requireOpen bool
	logger      *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCycleRunner(ctrl *AdmissionController, source CandidateSource, clock domrepo.MarketClock, interval time.Duration, requireOpen bool) *CycleRunner {
	if interval <= 0 {
		interval = time.Second
	}
	return &CycleRunner{
		ctrl:        ctrl,
		source:      source,
		clock:       clock,
		interval:    interval,
		requireOpen: requireOpen,
		logger:      applogger.Nop(),
	}
}

func (r *CycleRunner) SetLogger(l *applogger.Logger) {
	if l != nil {
		r.logger = l
	}
}

func (r *CycleRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("cycle runner already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	return nil
}

func (r *CycleRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrMarketClosed) && !errors.Is(err, context.Canceled) {
				r.logger.Error("admission cycle failed", applogger.Error(err))
			}
		}
	}
}

// RunOnce runs a single cycle. It returns ErrMarketClosed when the exchange
// is closed and market hours are required.
func (r *CycleRunner) RunOnce(ctx context.Context) (*CycleReport, error) {
	if r.requireOpen && r.clock != nil {
		clk, err := r.clock.Clock(ctx)
		if err != nil {
			return nil, fmt.Errorf("market clock: %w", err)
		}
		if !clk.IsOpen {
			r.logger.Debug("market closed, skipping cycle", applogger.Any("next_open", clk.NextOpen))
			return nil, ErrMarketClosed
		}
	}

	cands, err := r.source.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(cands) == 0 {
		return &CycleReport{StartedAt: time.Now()}, nil
	}

	report, err := r.ctrl.RunCycle(ctx, cands)
	if report != nil {
		r.logger.Info("admission cycle complete",
			applogger.Int("candidates", len(cands)),
			applogger.Int("admitted", report.Admitted),
			applogger.Int("rejected", report.Rejected),
			applogger.Int("excluded", len(report.Excluded)),
			applogger.Duration("duration_ms", report.Duration))
	}
	return report, err
}

// Stop cancels the loop and waits for the current cycle to finish.
func (r *CycleRunner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
