package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in a consumer group and dispatches to a
// worker pool. Failed messages are retried, then sent to the DLQ if one is set.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      MessageWriter
	queue    chan kafka.Message
	logger   *applogger.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "admission",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		queue:    make(chan kafka.Message, cfg.BufferSize),
		logger:   applogger.Nop(),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics(prometheus.DefaultRegisterer)
	return c, nil
}

func (c *Consumer) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.logger.Warn("kafka handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.work(ctx)
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.read(ctx, topic, r)
	}
	c.logger.Info("kafka consumer started", applogger.Int("workers", c.cfg.WorkerCount), applogger.String("group", c.cfg.GroupID))
	return nil
}

func (c *Consumer) read(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case c.queue <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	h, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()
	attempts, err := HandleWithRetry(ctx, h, msg.Value, c.cfg.RetryMax, c.cfg.BackoffMin, c.cfg.BackoffMax)
	consumerHandleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return // shutting down; leave uncommitted for redelivery
		}
		c.logger.Error("kafka handler failed", applogger.String("topic", msg.Topic),
			applogger.Int("attempts", attempts), applogger.Error(err))
		if c.dlq == nil {
			return
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		dlqErr := c.dlq.WriteMessages(dctx, kafka.Message{
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.Topic)}, {Key: "error", Value: []byte(err.Error())}},
		})
		cancel()
		if dlqErr != nil {
			c.logger.Error("kafka dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(dlqErr))
			return
		}
	}

	if r := c.readers[msg.Topic]; r != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := r.CommitMessages(cctx, msg); err != nil {
			c.logger.Warn("kafka commit failed", applogger.String("topic", msg.Topic), applogger.Error(err))
		}
		cancel()
	}
}

// HandleWithRetry calls h up to retryMax+1 times with jittered exponential backoff.
func HandleWithRetry(ctx context.Context, h MessageHandler, data []byte, retryMax int, min, max time.Duration) (int, error) {
	var err error
	attempts := 0
	for {
		attempts++
		if err = safeHandle(ctx, h, data); err == nil || attempts > retryMax {
			return attempts, err
		}
		select {
		case <-time.After(backoffWithJitter(min, max, attempts)):
		case <-ctx.Done():
			return attempts, errors.Join(err, ctx.Err())
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int64N(half))
}

// Stop cancels readers and workers and waits for them, bounded by ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() { c.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.logger.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return stopErr
}

var (
	consumerOnce          sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleSeconds *prometheus.HistogramVec
)

func initConsumerMetrics(reg prometheus.Registerer) {
	consumerOnce.Do(func() {
		f := promauto.With(reg)
		consumerQueueDepth = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "admission_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandleSeconds = f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "admission_kafka_consumer_handle_seconds",
			Help: "Handling time per message including retries",
		}, []string{"topic"})
	})
}
