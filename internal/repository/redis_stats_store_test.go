package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/cache"
)

type fixedDate string

func (d *fixedDate) TradingDate(context.Context) string { return string(*d) }

func newStatsStore(t *testing.T) (*RedisStatsStore, *fixedDate, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	date := fixedDate("2024-03-15")
	return NewRedisStatsStore(cache.NewRedisCacheWithClient(client, "test"), &date, time.Hour), &date, mr
}

func TestStatsGetMissing(t *testing.T) {
	s, _, _ := newStatsStore(t)
	if _, err := s.Get(context.Background(), "AAPL", "momentum"); !errors.Is(err, models.ErrStatsNotFound) {
		t.Fatalf("expected ErrStatsNotFound, got %v", err)
	}
}

func TestStatsUpsertCounts(t *testing.T) {
	s, _, mr := newStatsStore(t)
	ctx := context.Background()

	for _, o := range []models.Outcome{models.OutcomeSuccess, models.OutcomeSuccess, models.OutcomeFailure} {
		if _, err := s.Upsert(ctx, "aapl", "momentum", o); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := s.Get(ctx, "AAPL", "momentum")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Successes != 2 || got.Failures != 1 || got.Total() != 3 {
		t.Fatalf("stats = %+v", got)
	}
	if got.Date != "2024-03-15" || got.LastUpdated.IsZero() {
		t.Fatalf("missing date or timestamp: %+v", got)
	}
	if ttl := mr.TTL("test:stats:2024-03-15:AAPL:momentum"); ttl <= 0 {
		t.Fatalf("expected key ttl, got %v", ttl)
	}
}

func TestStatsConcurrentUpserts(t *testing.T) {
	s, _, _ := newStatsStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := models.OutcomeSuccess
			if i%2 == 1 {
				o = models.OutcomeFailure
			}
			if _, err := s.Upsert(ctx, "MSFT", "rsi", o); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "MSFT", "rsi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Successes != 25 || got.Failures != 25 {
		t.Fatalf("lost updates: %+v", got)
	}
}

func TestStatsResetOnNewDay(t *testing.T) {
	s, date, _ := newStatsStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "TSLA", "momentum", models.OutcomeFailure); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	*date = "2024-03-18"
	if _, err := s.Get(ctx, "TSLA", "momentum"); !errors.Is(err, models.ErrStatsNotFound) {
		t.Fatalf("new trading day should start empty, got %v", err)
	}
}

func TestIncrementDecisions(t *testing.T) {
	s, _, _ := newStatsStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.IncrementDecisions(ctx, "NVDA", "macd"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, err := s.Get(ctx, "NVDA", "macd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalDecisions != 3 || got.Total() != 0 {
		t.Fatalf("stats = %+v", got)
	}
}
