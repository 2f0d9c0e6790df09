package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	domsvc "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/service"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/services/features"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/services/validation"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

type ControllerConfig struct {
	Concurrency  int
	Deadline     time.Duration // hard limit for the fetch phase of a cycle
	FetchTimeout time.Duration
	StatsTimeout time.Duration
	StoreTimeout time.Duration
	Timeframe    domrepo.Timeframe
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 25
	}
	if c.Deadline <= 0 {
		c.Deadline = 900 * time.Millisecond
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 800 * time.Millisecond
	}
	if c.StatsTimeout <= 0 {
		c.StatsTimeout = 200 * time.Millisecond
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
	if c.Timeframe == "" {
		c.Timeframe = domrepo.DefaultTimeframe()
	}
	return c
}

// Evaluation is the terminal result for one ticker.
type Evaluation struct {
	Candidate models.Candidate
	State     models.State
	Reason    string
	Stats     models.IntradayStats
	Decision  *models.BanditDecision
	Rejection *models.RejectionRecord

	statsLoaded bool
}

type CycleReport struct {
	StartedAt   time.Time
	Duration    time.Duration
	Evaluations []Evaluation
	Excluded    []string
	Admitted    int
	Rejected    int
}

// AdmissionController turns candidates into admit/reject decisions.
type AdmissionController struct {
	market   domrepo.MarketData
	stats    domrepo.StatsStore
	audit    domrepo.AuditSink
	analyzer domsvc.TrendAnalyzer
	rules    domsvc.Validator
	gate     domsvc.DecisionGate
	metrics  domrepo.Metrics
	cfg      ControllerConfig
	logger   *applogger.Logger
	now      func() time.Time
}

func NewAdmissionController(
	market domrepo.MarketData,
	stats domrepo.StatsStore,
	audit domrepo.AuditSink,
	analyzer domsvc.TrendAnalyzer,
	rules domsvc.Validator,
	gate domsvc.DecisionGate,
	metrics domrepo.Metrics,
	cfg ControllerConfig,
) *AdmissionController {
	return &AdmissionController{
		market:   market,
		stats:    stats,
		audit:    audit,
		analyzer: analyzer,
		rules:    rules,
		gate:     gate,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		logger:   applogger.Nop(),
		now:      time.Now,
	}
}

func (c *AdmissionController) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetClock overrides the time source used for record timestamps.
func (c *AdmissionController) SetClock(now func() time.Time) { c.now = now }

var requestValidator = validator.New()

// ValidateRequest checks the caller-supplied shape before anything else runs.
func ValidateRequest(req models.DecisionRequest) error {
	if strings.TrimSpace(req.Ticker) == "" {
		return models.InvalidInput("ticker is required")
	}
	if strings.TrimSpace(req.Indicator) == "" {
		return models.InvalidInput("indicator is required")
	}
	if req.ConfidenceScore == nil {
		return models.InvalidInput("confidence_score is required")
	}
	if err := requestValidator.Struct(req); err != nil {
		var fes validator.ValidationErrors
		if errors.As(err, &fes) && len(fes) > 0 {
			fe := fes[0]
			return models.InvalidInput("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return models.InvalidInput("%v", err)
	}
	return nil
}

// Decide evaluates a single request. Caller errors are returned before any
// external call; every other failure becomes a rejection in the response.
func (c *AdmissionController) Decide(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	cand := models.Candidate{
		Ticker:          strings.ToUpper(strings.TrimSpace(req.Ticker)),
		Indicator:       strings.TrimSpace(req.Indicator),
		Action:          req.Action,
		ConfidenceScore: *req.ConfidenceScore,
	}

	start := time.Now()
	var (
		snap     *models.MarketSnapshot
		fetchErr error
	)
	if !cand.Action.IsExit() {
		snap, fetchErr = c.fetch(ctx, cand.Ticker)
	}
	ev := c.evaluate(ctx, cand, req.CurrentPrice, snap, fetchErr)
	if !ev.statsLoaded {
		ev.Stats = c.loadStats(ctx, cand.Ticker, cand.Indicator)
	}
	c.metrics.RecordLatency("decide", time.Since(start).Seconds())

	c.flush(ctx, []Evaluation{ev})

	return &models.DecisionResponse{
		Decision:      ev.State == models.StateAdmitted,
		Reason:        ev.Reason,
		Ticker:        cand.Ticker,
		Indicator:     cand.Indicator,
		Action:        cand.Action,
		IntradayStats: ev.Stats,
	}, nil
}

// RunCycle evaluates candidates with bounded concurrency. Tickers whose
// market data has not arrived by the deadline are excluded without a record.
// Rejections and decisions are written once, after every ticker is terminal.
func (c *AdmissionController) RunCycle(ctx context.Context, candidates []models.Candidate) (*CycleReport, error) {
	report := &CycleReport{StartedAt: c.now()}
	start := time.Now()

	valid := make([]models.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		conf := cand.ConfidenceScore
		req := models.DecisionRequest{
			Ticker: cand.Ticker, Indicator: cand.Indicator, Action: cand.Action,
			ConfidenceScore: &conf, CurrentPrice: 1,
		}
		if err := ValidateRequest(req); err != nil {
			c.logger.Warn("skipping malformed candidate", applogger.String("ticker", cand.Ticker), applogger.Error(err))
			continue
		}
		valid = append(valid, cand)
	}

	cycleCtx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	results := make([]*Evaluation, len(valid))
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i, cand := range valid {
		g.Go(func() error {
			results[i] = c.evaluateInCycle(ctx, cycleCtx, cand)
			return nil
		})
	}
	_ = g.Wait()

	for i, ev := range results {
		if ev == nil {
			report.Excluded = append(report.Excluded, valid[i].Ticker)
			continue
		}
		report.Evaluations = append(report.Evaluations, *ev)
	}

	c.flush(ctx, report.Evaluations)

	for _, ev := range report.Evaluations {
		switch ev.State {
		case models.StateAdmitted:
			report.Admitted++
		default:
			report.Rejected++
		}
	}
	report.Duration = time.Since(start)
	c.metrics.RecordCycle(len(valid), len(report.Excluded))
	c.metrics.RecordLatency("cycle", report.Duration.Seconds())
	if len(report.Excluded) > 0 {
		c.logger.Warn("cycle deadline excluded tickers",
			applogger.Strings("tickers", report.Excluded), applogger.Duration("deadline_ms", c.cfg.Deadline))
	}
	return report, ctx.Err()
}

// evaluateInCycle returns nil when the ticker missed the cycle deadline.
func (c *AdmissionController) evaluateInCycle(ctx, cycleCtx context.Context, cand models.Candidate) *Evaluation {
	if cycleCtx.Err() != nil {
		return nil
	}
	snap, fetchErr := c.fetch(cycleCtx, cand.Ticker)
	if cycleCtx.Err() != nil {
		return nil
	}
	if cand.Action.IsExit() {
		// Exits are never blocked on data; the snapshot only prices the decision.
		var price float64
		if fetchErr == nil {
			price = snap.CurrentPrice()
		}
		ev := c.evaluate(ctx, cand, price, nil, nil)
		return &ev
	}
	ev := c.evaluate(ctx, cand, 0, snap, fetchErr)
	return &ev
}

func (c *AdmissionController) fetch(ctx context.Context, ticker string) (*models.MarketSnapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := c.market.Snapshot(fctx, ticker)
	c.metrics.RecordLatency("market_data_fetch", time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("market_data")
		return nil, err
	}
	return snap, nil
}

// evaluate walks one candidate through
// PENDING -> VALIDATING -> GATING -> ADMITTED, or stops in a rejected state.
func (c *AdmissionController) evaluate(ctx context.Context, cand models.Candidate, price float64, snap *models.MarketSnapshot, fetchErr error) Evaluation {
	ev := Evaluation{Candidate: cand, State: models.StatePending}
	dir := cand.Action.Direction()

	ev.State = models.StateValidating
	var metrics models.TrendMetrics
	if !cand.Action.IsExit() {
		var outcome models.ValidationOutcome
		if fetchErr != nil {
			outcome = models.BlockBoth(fmt.Sprintf("data quality: market data unavailable (%v)", fetchErr))
		} else {
			metrics = c.analyzer.Analyze(snap.Bars)
			if price <= 0 {
				price = snap.CurrentPrice()
			}
			outcome = validation.ForAction(c.rules, cand.Action, models.ValidationInput{
				Ticker:       cand.Ticker,
				Metrics:      metrics,
				Quote:        snap.Quote,
				Bars:         snap.Bars,
				CurrentPrice: price,
			})
		}
		if outcome.Blocks(dir) {
			ev.State = models.StateRejectedValidation
			ev.Reason = outcome.Reason(dir)
			ev.Rejection = c.rejection(cand, outcome.ReasonLong(), outcome.ReasonShort(), snap, metrics)
			c.metrics.RecordState(string(ev.State), string(cand.Action))
			return ev
		}
	}

	ev.State = models.StateGating
	ev.Stats = c.loadStats(ctx, cand.Ticker, cand.Indicator)
	ev.statsLoaded = true

	ok, reason := c.gate.CalculateDecision(ev.Stats.Successes, ev.Stats.Failures, cand.ConfidenceScore, cand.Action)
	ev.Reason = reason
	ev.Decision = &models.BanditDecision{
		Decision:        ok,
		Ticker:          cand.Ticker,
		Indicator:       cand.Indicator,
		Action:          cand.Action,
		Reason:          reason,
		ConfidenceScore: cand.ConfidenceScore,
		CurrentPrice:    price,
		Timestamp:       c.now(),
		Stats:           ev.Stats,
	}

	if ok {
		ev.State = models.StateAdmitted
	} else {
		ev.State = models.StateRejectedBandit
		long, short := "", ""
		if dir == models.Short {
			short = reason
		} else {
			long = reason
		}
		ev.Rejection = c.rejection(cand, long, short, snap, metrics)
	}
	c.metrics.RecordState(string(ev.State), string(cand.Action))
	return ev
}

func (c *AdmissionController) rejection(cand models.Candidate, long, short string, snap *models.MarketSnapshot, m models.TrendMetrics) *models.RejectionRecord {
	return &models.RejectionRecord{
		Ticker:                cand.Ticker,
		Indicator:             cand.Indicator,
		ReasonNotToEnterLong:  long,
		ReasonNotToEnterShort: short,
		TechnicalIndicators:   features.TechnicalIndicators(snap, m, c.cfg.Timeframe),
		Timestamp:             c.now(),
	}
}

// loadStats falls back to a fresh Beta(1,1) prior when the store is unreachable.
func (c *AdmissionController) loadStats(ctx context.Context, ticker, indicator string) models.IntradayStats {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StatsTimeout)
	defer cancel()

	st, err := c.stats.Get(sctx, ticker, indicator)
	if err == nil && st != nil {
		return *st
	}
	if err != nil && !errors.Is(err, models.ErrStatsNotFound) {
		c.metrics.RecordError("stats_read")
		c.logger.Warn("intraday stats unavailable, using fresh prior",
			applogger.String("ticker", ticker), applogger.String("indicator", indicator), applogger.Error(err))
	}
	return models.IntradayStats{Ticker: ticker, Indicator: indicator}
}

// flush performs the single batch write of a cycle. Failures are logged and
// never change decisions already made.
func (c *AdmissionController) flush(ctx context.Context, evs []Evaluation) {
	collector := NewRejectionCollector()
	var decisions []models.BanditDecision
	for _, ev := range evs {
		if ev.Rejection != nil {
			collector.Add(*ev.Rejection)
		}
		if ev.Decision != nil {
			decisions = append(decisions, *ev.Decision)
		}
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StoreTimeout)
	defer cancel()

	if records := collector.Drain(); len(records) > 0 {
		if err := c.audit.StoreRejections(sctx, records); err != nil {
			c.metrics.RecordError("rejection_write")
			c.logger.Error("failed to store rejection batch", applogger.Int("count", len(records)),
				applogger.String("ticker", records[0].Ticker), applogger.String("indicator", records[0].Indicator),
				applogger.Error(err))
		}
	}
	if len(decisions) > 0 {
		if err := c.audit.StoreDecisions(sctx, decisions); err != nil {
			c.metrics.RecordError("decision_write")
			c.logger.Error("failed to store decisions", applogger.Int("count", len(decisions)),
				applogger.String("ticker", decisions[0].Ticker), applogger.String("indicator", decisions[0].Indicator),
				applogger.Error(err))
		}
	}
	for _, d := range decisions {
		if !d.Decision {
			continue
		}
		if err := c.stats.IncrementDecisions(sctx, d.Ticker, d.Indicator); err != nil {
			c.metrics.RecordError("stats_write")
			c.logger.Warn("failed to count decision",
				applogger.String("ticker", d.Ticker), applogger.String("indicator", d.Indicator), applogger.Error(err))
		}
	}
}
