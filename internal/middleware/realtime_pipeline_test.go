package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{errors: map[string]int{}} }

func (m *countingMetrics) RecordState(string, string) {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordLatency(string, float64) {}
func (m *countingMetrics) RecordCycle(int, int)          {}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type recordingProc struct {
	mu     sync.Mutex
	trades []*models.Trade
	fail   int
}

func (p *recordingProc) Process(_ context.Context, t *models.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("downstream busy")
	}
	p.trades = append(p.trades, t)
	return nil
}

func (p *recordingProc) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades)
}

func TestPipelineValidatesAndNormalizes(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithMaxRPS(0), WithTransform(UpperSymbol))

	if err := p.Process(context.Background(), &models.Trade{Symbol: "aapl", Timestamp: 1, Price: 0}); err == nil {
		t.Fatalf("zero price should fail validation")
	}
	if err := p.Process(context.Background(), &models.Trade{Symbol: "aapl", Timestamp: 1, Price: 10}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.len() != 1 || proc.trades[0].Symbol != "AAPL" {
		t.Fatalf("trades = %+v", proc.trades)
	}
	if m.count("pipeline_validate") != 1 {
		t.Fatalf("validate errors = %d", m.count("pipeline_validate"))
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	for i := 0; i < 5; i++ {
		_ = p.Process(context.Background(), &models.Trade{Symbol: "AAPL", Timestamp: 1, Price: 10})
	}
	_ = p.Process(context.Background(), &models.Trade{Symbol: "MSFT", Timestamp: 1, Price: 10})
	if proc.len() != 2 {
		t.Fatalf("expected one trade per symbol, got %d", proc.len())
	}
	if m.count("pipeline_throttle") != 4 {
		t.Fatalf("throttled = %d", m.count("pipeline_throttle"))
	}
}

func TestPipelineRetriesBufferedTrades(t *testing.T) {
	proc := &recordingProc{fail: 1}
	p := NewRealtimePipeline(proc, newCountingMetrics(), WithMaxRPS(0), WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Process(ctx, &models.Trade{Symbol: "AAPL", Timestamp: 1, Price: 10}); err == nil {
		t.Fatalf("expected downstream error")
	}
	if p.Buffered() != 1 {
		t.Fatalf("buffered = %d", p.Buffered())
	}

	p.Start(ctx)
	defer p.Stop()
	deadline := time.Now().Add(time.Second)
	for proc.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered trade was not retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
