package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisCacheConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(WithRedisAddr(mr.Addr()), WithRedisPrefix("test"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rc.Close()

	if err := rc.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := rc.Key("stats", "2024-03-15", "AAPL"); got != "test:stats:2024-03-15:AAPL" {
		t.Fatalf("key = %q", got)
	}
}

func TestNewRedisCacheFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	_, err := NewRedisCache(WithRedisAddr(addr), WithRedisTimeouts(200*time.Millisecond, 0, 0))
	if err == nil {
		t.Fatalf("expected ping error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("dial timeout not applied")
	}
}

func TestKeyWithoutPrefix(t *testing.T) {
	rc := NewRedisCacheWithClient(nil, "")
	if got := rc.Key("a", "b"); got != "a:b" {
		t.Fatalf("key = %q", got)
	}
}
