package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/cache"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/util"
)

const (
	fieldSuccesses   = "successes"
	fieldFailures    = "failures"
	fieldTotal       = "total_decisions"
	fieldLastUpdated = "last_updated"
)

// DateSource names the current trading day, exchange-local YYYY-MM-DD.
type DateSource interface {
	TradingDate(ctx context.Context) string
}

// RedisStatsStore keeps one hash per (day, ticker, indicator). Every update
// runs as a MULTI/EXEC so concurrent outcomes never lose an increment, and
// the day is part of the key so counters reset at the exchange day boundary.
type RedisStatsStore struct {
	rc    *cache.RedisCache
	dates DateSource
	ttl   time.Duration
	now   func() time.Time
}

var _ domrepo.StatsStore = (*RedisStatsStore)(nil)

func NewRedisStatsStore(rc *cache.RedisCache, dates DateSource, ttl time.Duration) *RedisStatsStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStatsStore{rc: rc, dates: dates, ttl: ttl, now: time.Now}
}

func (s *RedisStatsStore) key(date, ticker, indicator string) string {
	return s.rc.Key("stats", date, strings.ToUpper(ticker), indicator)
}

func (s *RedisStatsStore) Get(ctx context.Context, ticker, indicator string) (*models.IntradayStats, error) {
	date := s.dates.TradingDate(ctx)
	fields, err := s.rc.Client().HGetAll(ctx, s.key(date, ticker, indicator)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrStatsNotFound
	}
	return decodeStats(ticker, indicator, date, fields), nil
}

func (s *RedisStatsStore) Upsert(ctx context.Context, ticker, indicator string, outcome models.Outcome) (*models.IntradayStats, error) {
	field := fieldFailures
	if outcome == models.OutcomeSuccess {
		field = fieldSuccesses
	}
	date := s.dates.TradingDate(ctx)
	key := s.key(date, ticker, indicator)

	pipe := s.rc.Client().TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.HSet(ctx, key, fieldLastUpdated, s.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, s.ttl)
	all := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis upsert stats: %w", err)
	}
	return decodeStats(ticker, indicator, date, all.Val()), nil
}

func (s *RedisStatsStore) IncrementDecisions(ctx context.Context, ticker, indicator string) error {
	key := s.key(s.dates.TradingDate(ctx), ticker, indicator)
	pipe := s.rc.Client().TxPipeline()
	pipe.HIncrBy(ctx, key, fieldTotal, 1)
	pipe.HSet(ctx, key, fieldLastUpdated, s.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis increment decisions: %w", err)
	}
	return nil
}

func decodeStats(ticker, indicator, date string, fields map[string]string) *models.IntradayStats {
	return &models.IntradayStats{
		Ticker:         strings.ToUpper(ticker),
		Indicator:      indicator,
		Date:           date,
		Successes:      util.ParseIntDefault(fields[fieldSuccesses], 0),
		Failures:       util.ParseIntDefault(fields[fieldFailures], 0),
		TotalDecisions: util.ParseIntDefault(fields[fieldTotal], 0),
		LastUpdated:    util.ParseTimeDefault(fields[fieldLastUpdated], time.Time{}),
	}
}
