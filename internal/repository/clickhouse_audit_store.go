package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	pkgch "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/clickhouse"
)

const (
	RejectionsTable = "admission_rejections"
	DecisionsTable  = "admission_decisions"
)

// AuditSchema is applied by Init. Both tables are append-only.
var AuditSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + RejectionsTable + ` (
        ts DateTime64(3, 'UTC'),
        ticker LowCardinality(String),
        indicator LowCardinality(String),
        reason_long String,
        reason_short String,
        technical_indicators String
    ) ENGINE = MergeTree
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (ticker, ts)`,
	`CREATE TABLE IF NOT EXISTS ` + DecisionsTable + ` (
        ts DateTime64(3, 'UTC'),
        ticker LowCardinality(String),
        indicator LowCardinality(String),
        action LowCardinality(String),
        decision UInt8,
        reason String,
        confidence_score Float64,
        current_price Float64,
        trading_date String,
        successes UInt32,
        failures UInt32,
        total_decisions UInt32
    ) ENGINE = MergeTree
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (ticker, ts)`,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// ClickHouseAuditStore writes rejection and decision records with
// multi-row inserts.
type ClickHouseAuditStore struct {
	db        execer
	ch        *pkgch.Client
	chunkSize int
}

var _ domrepo.AuditSink = (*ClickHouseAuditStore)(nil)

func NewClickHouseAuditStore(ch *pkgch.Client) *ClickHouseAuditStore {
	return &ClickHouseAuditStore{db: ch.DB(), ch: ch, chunkSize: 2000}
}

func newAuditStoreWithDB(db execer, chunkSize int) *ClickHouseAuditStore {
	return &ClickHouseAuditStore{db: db, chunkSize: chunkSize}
}

func (s *ClickHouseAuditStore) Init(ctx context.Context) error {
	if s.ch != nil {
		return s.ch.InitSchema(ctx, AuditSchema)
	}
	for _, stmt := range AuditSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseAuditStore) StoreRejections(ctx context.Context, records []models.RejectionRecord) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		if r.Ticker == "" {
			continue
		}
		ti, err := json.Marshal(r.TechnicalIndicators)
		if err != nil {
			return fmt.Errorf("marshal technical indicators: %w", err)
		}
		rows = append(rows, []interface{}{
			r.Timestamp.UTC(), r.Ticker, r.Indicator,
			r.ReasonNotToEnterLong, r.ReasonNotToEnterShort, string(ti),
		})
	}
	return s.insert(ctx, RejectionsTable,
		[]string{"ts", "ticker", "indicator", "reason_long", "reason_short", "technical_indicators"}, rows)
}

func (s *ClickHouseAuditStore) StoreDecisions(ctx context.Context, decisions []models.BanditDecision) error {
	rows := make([][]interface{}, 0, len(decisions))
	for _, d := range decisions {
		if d.Ticker == "" {
			continue
		}
		var flag uint8
		if d.Decision {
			flag = 1
		}
		rows = append(rows, []interface{}{
			d.Timestamp.UTC(), d.Ticker, d.Indicator, string(d.Action), flag, d.Reason,
			d.ConfidenceScore, d.CurrentPrice, d.Stats.Date,
			uint32(d.Stats.Successes), uint32(d.Stats.Failures), uint32(d.Stats.TotalDecisions),
		})
	}
	return s.insert(ctx, DecisionsTable,
		[]string{"ts", "ticker", "indicator", "action", "decision", "reason", "confidence_score",
			"current_price", "trading_date", "successes", "failures", "total_decisions"}, rows)
}

func (s *ClickHouseAuditStore) insert(ctx context.Context, table string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < len(rows); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for _, row := range rows[start:end] {
			values = append(values, placeholder)
			args = append(args, row...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func (s *ClickHouseAuditStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAuditStore) Close() error {
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}
