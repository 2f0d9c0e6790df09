package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	pkgkafka "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/kafka"
)

// OutcomeRecorder feeds realized trade outcomes back into the intraday stats.
type OutcomeRecorder struct {
	stats   domrepo.StatsStore
	metrics domrepo.Metrics
}

func NewOutcomeRecorder(stats domrepo.StatsStore, metrics domrepo.Metrics) *OutcomeRecorder {
	return &OutcomeRecorder{stats: stats, metrics: metrics}
}

func (r *OutcomeRecorder) Record(ctx context.Context, req models.OutcomeRequest) (*models.IntradayStats, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	indicator := strings.TrimSpace(req.Indicator)
	if ticker == "" || indicator == "" {
		return nil, models.InvalidInput("ticker and indicator are required")
	}
	if !req.Outcome.Valid() {
		return nil, models.InvalidInput("outcome must be success or failure, got %q", req.Outcome)
	}

	start := time.Now()
	st, err := r.stats.Upsert(ctx, ticker, indicator, req.Outcome)
	r.metrics.RecordLatency("stats_upsert", time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordError("stats_write")
		return nil, fmt.Errorf("upsert stats %s/%s: %w", ticker, indicator, err)
	}
	return st, nil
}

// Stats returns the current counters, or an empty record for a fresh day.
func (r *OutcomeRecorder) Stats(ctx context.Context, ticker, indicator string) (*models.IntradayStats, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	st, err := r.stats.Get(ctx, ticker, indicator)
	if err != nil {
		if errors.Is(err, models.ErrStatsNotFound) {
			return &models.IntradayStats{Ticker: ticker, Indicator: indicator}, nil
		}
		return nil, err
	}
	return st, nil
}

// KafkaOutcomesHandler consumes {ticker, indicator, outcome} messages.
type KafkaOutcomesHandler struct {
	topic    string
	recorder *OutcomeRecorder
}

func NewKafkaOutcomesHandler(topic string, recorder *OutcomeRecorder) *KafkaOutcomesHandler {
	return &KafkaOutcomesHandler{topic: topic, recorder: recorder}
}

func (h *KafkaOutcomesHandler) Topic() string { return h.topic }

func (h *KafkaOutcomesHandler) Handle(ctx context.Context, b []byte) error {
	var req models.OutcomeRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recorder.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode outcome: %w", err)
	}
	_, err := h.recorder.Record(ctx, req)
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaOutcomesHandler)(nil)
