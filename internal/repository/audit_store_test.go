package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	pkgkafka "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/kafka"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, q string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: q, args: args})
	return nil, f.err
}

func (f *fakeExecer) PingContext(context.Context) error { return f.err }

func rejections(n int) []models.RejectionRecord {
	out := make([]models.RejectionRecord, n)
	for i := range out {
		out[i] = models.RejectionRecord{
			Ticker:               "AAPL",
			Indicator:            "momentum",
			ReasonNotToEnterLong: "illiquid: spread=2.50% exceeds max 2%",
			TechnicalIndicators:  map[string]float64{"spread_percent": 2.5},
			Timestamp:            time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		}
	}
	return out
}

func TestStoreRejectionsChunks(t *testing.T) {
	db := &fakeExecer{}
	s := newAuditStoreWithDB(db, 2)

	if err := s.StoreRejections(context.Background(), rejections(5)); err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(db.calls) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(db.calls))
	}
	first := db.calls[0]
	if !strings.HasPrefix(first.query, "INSERT INTO "+RejectionsTable) {
		t.Fatalf("query = %s", first.query)
	}
	if len(first.args) != 12 {
		t.Fatalf("expected 12 args for 2 rows, got %d", len(first.args))
	}
	var ti map[string]float64
	if err := json.Unmarshal([]byte(first.args[5].(string)), &ti); err != nil || ti["spread_percent"] != 2.5 {
		t.Fatalf("technical indicators arg = %v (%v)", first.args[5], err)
	}
}

func TestStoreDecisionsColumns(t *testing.T) {
	db := &fakeExecer{}
	s := newAuditStoreWithDB(db, 100)

	err := s.StoreDecisions(context.Background(), []models.BanditDecision{{
		Decision: true, Ticker: "MSFT", Indicator: "rsi", Action: models.BuyToOpen,
		Reason: "exploring", ConfidenceScore: 0.8, CurrentPrice: 410.2,
		Stats: models.IntradayStats{Date: "2024-03-15", Successes: 2, Failures: 1, TotalDecisions: 4},
	}})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	args := db.calls[0].args
	if len(args) != 12 || args[4].(uint8) != 1 || args[8].(string) != "2024-03-15" || args[11].(uint32) != 4 {
		t.Fatalf("args = %v", args)
	}
}

func TestStoreEmptyBatchIsNoop(t *testing.T) {
	db := &fakeExecer{}
	s := newAuditStoreWithDB(db, 10)
	if err := s.StoreDecisions(context.Background(), nil); err != nil || len(db.calls) != 0 {
		t.Fatalf("expected no-op, calls=%d err=%v", len(db.calls), err)
	}
}

func TestStoreErrorWrapped(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	s := newAuditStoreWithDB(db, 10)
	err := s.StoreRejections(context.Background(), rejections(1))
	if err == nil || !strings.Contains(err.Error(), RejectionsTable) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestInitAppliesSchema(t *testing.T) {
	db := &fakeExecer{}
	s := newAuditStoreWithDB(db, 10)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(db.calls) != len(AuditSchema) {
		t.Fatalf("expected %d statements, got %d", len(AuditSchema), len(db.calls))
	}
}

type batchRecorder struct {
	topics []string
	msgs   [][]pkgkafka.Message
}

func (b *batchRecorder) PublishBatch(_ context.Context, topic string, m []pkgkafka.Message) error {
	b.topics = append(b.topics, topic)
	b.msgs = append(b.msgs, m)
	return nil
}

func (b *batchRecorder) Close() error { return nil }

func TestKafkaAuditPublisherKeysByTicker(t *testing.T) {
	rec := &batchRecorder{}
	p := NewKafkaAuditPublisher(rec, "rej", "dec")
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.StoreRejections(context.Background(), rejections(2)); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := p.StoreDecisions(context.Background(), []models.BanditDecision{{Ticker: "TSLA"}}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(rec.topics) != 2 || rec.topics[0] != "rej" || rec.topics[1] != "dec" {
		t.Fatalf("topics = %v", rec.topics)
	}
	if string(rec.msgs[0][1].Key) != "AAPL" || string(rec.msgs[1][0].Key) != "TSLA" {
		t.Fatalf("unexpected keys")
	}
	if err := NewKafkaAuditPublisher(rec, "", "dec").Init(context.Background()); err == nil {
		t.Fatalf("missing topic should fail init")
	}
}
