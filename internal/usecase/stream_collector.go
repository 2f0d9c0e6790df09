package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	drepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	mid "github.com/algorithmical-ai/automated-day-trading-sub001/internal/middleware"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

// StreamCollector feeds live trades for the watchlist through the pipeline
// into the bar book, reconnecting when the stream drops.
type StreamCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	symbols []string
	metrics drepo.Metrics
	logger  *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStreamCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, symbols []string, metrics drepo.Metrics) *StreamCollector {
	return &StreamCollector{stream: stream, pipe: pipe, symbols: symbols, metrics: metrics, logger: applogger.Nop()}
}

func (c *StreamCollector) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *StreamCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx, c.symbols); err != nil {
		_ = c.stream.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

func (c *StreamCollector) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.logger.Warn("market stream dropped, reconnecting", applogger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("stream_reconnect")
			c.logger.Error("market stream reconnect failed", applogger.Error(rerr))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

// consume drains one connection's channels and returns why it ended.
func (c *StreamCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			if !ok {
				errCh = nil
			}
		case t, ok := <-trCh:
			if !ok {
				return fmt.Errorf("trade channel closed")
			}
			_ = c.pipe.Process(ctx, t)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *StreamCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.pipe.Stop()
	err := c.stream.Close()
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
