package repository

import (
	"context"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

// MarketData returns recent bars and the latest quote for one ticker.
type MarketData interface {
	Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error)
}

// BarSource serves the most recent n bars for a ticker, oldest first.
type BarSource interface {
	Bars(ctx context.Context, ticker string, n int) ([]models.Bar, error)
}

type MarketClock interface {
	Clock(ctx context.Context) (models.MarketClock, error)
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// StatsStore owns intraday counters. Implementations must make each update atomic.
type StatsStore interface {
	Get(ctx context.Context, ticker, indicator string) (*models.IntradayStats, error)
	Upsert(ctx context.Context, ticker, indicator string, outcome models.Outcome) (*models.IntradayStats, error)
	IncrementDecisions(ctx context.Context, ticker, indicator string) error
}

type RejectionLog interface {
	StoreRejections(ctx context.Context, records []models.RejectionRecord) error
}

type DecisionLog interface {
	StoreDecisions(ctx context.Context, decisions []models.BanditDecision) error
}

// AuditSink persists both record kinds produced by a cycle.
type AuditSink interface {
	RejectionLog
	DecisionLog
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordState(state, action string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCycle(candidates, excluded int)
}
