package clock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/cache"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/util"
)

const clockKey = "market_clock"

// Cached fronts a clock provider. Concurrent callers share one upstream
// request and the answer is reused for ttl.
type Cached struct {
	upstream domrepo.MarketClock
	ttl      time.Duration
	loc      *time.Location
	cache    *cache.TTLCache[fetchedClock]
	group    singleflight.Group
	now      func() time.Time
}

type fetchedClock struct {
	clk models.MarketClock
	at  time.Time
}

var _ domrepo.MarketClock = (*Cached)(nil)

func NewCached(upstream domrepo.MarketClock, ttl time.Duration, loc *time.Location) *Cached {
	if loc == nil {
		loc = time.UTC
	}
	return &Cached{
		upstream: upstream,
		ttl:      ttl,
		loc:      loc,
		cache:    cache.NewTTLCache[fetchedClock](),
		now:      time.Now,
	}
}

func (c *Cached) Clock(ctx context.Context) (models.MarketClock, error) {
	f, err := c.fetch(ctx)
	return f.clk, err
}

func (c *Cached) fetch(ctx context.Context) (fetchedClock, error) {
	if f, ok := c.cache.Get(clockKey); ok {
		return f, nil
	}
	ch := c.group.DoChan(clockKey, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		clk, err := c.upstream.Clock(context.WithoutCancel(ctx))
		if err != nil {
			return fetchedClock{}, err
		}
		f := fetchedClock{clk: clk, at: c.now()}
		c.cache.Set(clockKey, f, c.ttl)
		return f, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return fetchedClock{}, fmt.Errorf("market clock: %w", res.Err)
		}
		return res.Val.(fetchedClock), nil
	case <-ctx.Done():
		return fetchedClock{}, ctx.Err()
	}
}

// TradingDate is the exchange-local date of the upstream timestamp carried
// forward by the time elapsed since it was fetched, or of the wall clock
// when the upstream has not answered.
func (c *Cached) TradingDate(ctx context.Context) string {
	f, err := c.fetch(ctx)
	now := c.now()
	if err != nil || f.clk.Timestamp.IsZero() {
		return util.TradingDate(now, c.loc)
	}
	return util.TradingDate(f.clk.Timestamp.Add(now.Sub(f.at)), c.loc)
}
