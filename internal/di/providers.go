package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/handler/api"
	mid "github.com/algorithmical-ai/automated-day-trading-sub001/internal/middleware"
	internalrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/alpaca"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/barbook"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/clock"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/finnhub"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/ratelimit"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/services/bandit"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/services/trend"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/services/validation"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/usecase"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/cache"
	pkgch "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/clickhouse"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/config"
	pkgkafka "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/kafka"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/metrics"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/server"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/util"
)

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:   cfg.Logger.Level,
		Format:  cfg.Logger.Format,
		Output:  cfg.Logger.Output,
		Service: "admission",
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideLocation(cfg *config.Config) *time.Location {
	return util.MustLocation(cfg.Admission.Timezone)
}

func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	// One connection per in-flight stats read, plus headroom for outcome writes.
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port))),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Admission.Concurrency+8, 4, cfg.Admission.StatsTimeout),
		cache.WithRedisTimeouts(0, cfg.Admission.StatsTimeout, cfg.Backend.StoreTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideMarketClock fronts the Alpaca clock with a short-lived shared cache.
func ProvideMarketClock(cfg *config.Config, loc *time.Location) *clock.Cached {
	trading := alpaca.NewTradingClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	return clock.NewCached(alpaca.NewClock(trading), cfg.Alpaca.ClockTTL, loc)
}

func ProvideStatsStore(rc *cache.RedisCache, clk *clock.Cached, cfg *config.Config) repository.StatsStore {
	return internalrepo.NewRedisStatsStore(rc, clk, cfg.Redis.StatsTTL)
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAuditSink selects the record backend and applies its schema.
func ProvideAuditSink(cfg *config.Config, producer *pkgkafka.Producer) (repository.AuditSink, error) {
	var sink repository.AuditSink
	switch cfg.Backend.Type {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka backend needs a producer")
		}
		sink = internalrepo.NewKafkaAuditPublisher(producer, cfg.Kafka.RejectionsTopic, cfg.Kafka.DecisionsTopic)
	default:
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(cfg.ClickHouse.MaxConnections, cfg.ClickHouse.MaxConnections),
			pkgch.WithConnMaxLifetime(10*time.Minute),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.Backend.StoreTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		sink = internalrepo.NewClickHouseAuditStore(client)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Init(ctx); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("audit sink init: %w", err)
	}
	return sink, nil
}

func ProvideBarBook(cfg *config.Config) *barbook.Book {
	tf := repository.NormalizeTimeframe(cfg.Alpaca.Timeframe)
	return barbook.New(time.Duration(tf.Minutes())*time.Minute, cfg.Alpaca.Lookback*2)
}

// ProvideStreamCollector returns nil when live streaming is disabled.
func ProvideStreamCollector(cfg *config.Config, book *barbook.Book, m repository.Metrics, l *applogger.Logger) *usecase.StreamCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	stream := finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, cfg.Finnhub.ReconnectDelay, cfg.Finnhub.PingInterval)
	stream.SetLogger(l)
	pipe := mid.NewRealtimePipeline(book, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
		mid.WithTransform(mid.UpperSymbol),
	)
	symbols := make([]string, 0, len(cfg.Admission.Watchlist))
	for _, w := range cfg.Admission.Watchlist {
		symbols = append(symbols, w.Ticker)
	}
	c := usecase.NewStreamCollector(stream, pipe, symbols, m)
	c.SetLogger(l)
	return c
}

func ProvideMarketData(cfg *config.Config, book *barbook.Book, l *applogger.Logger) repository.MarketData {
	client := alpaca.NewDataClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	opts := []alpaca.Option{alpaca.WithLogger(l)}
	if cfg.Finnhub.Enabled {
		opts = append(opts, alpaca.WithLiveBars(book, cfg.Finnhub.MinBars))
	}
	return alpaca.NewMarketData(client, cfg.Alpaca.Feed, repository.NormalizeTimeframe(cfg.Alpaca.Timeframe), cfg.Alpaca.Lookback, opts...)
}

func ProvideAdmissionController(
	cfg *config.Config,
	market repository.MarketData,
	stats repository.StatsStore,
	audit repository.AuditSink,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AdmissionController {
	a := cfg.Admission
	chain := validation.NewDefaultChain(validation.Thresholds{
		MinBars:          trend.MinBars,
		MaxSpread:        a.MaxSpread,
		MinContinuation:  a.MinContinuation,
		ExtremeThreshold: a.ExtremeThreshold,
		MinMomentum:      a.MinMomentum,
		MaxMomentum:      a.MaxMomentum,
	})
	ctrl := usecase.NewAdmissionController(
		market, stats, audit,
		trend.NewAnalyzer(a.TrendWindow),
		chain,
		bandit.NewEngine(bandit.WithBoundary(a.AcceptanceBoundary)),
		m,
		usecase.ControllerConfig{
			Concurrency:  a.Concurrency,
			Deadline:     a.Deadline,
			FetchTimeout: a.FetchTimeout,
			StatsTimeout: a.StatsTimeout,
			StoreTimeout: cfg.Backend.StoreTimeout,
			Timeframe:    repository.NormalizeTimeframe(cfg.Alpaca.Timeframe),
		},
	)
	ctrl.SetLogger(l)
	return ctrl
}

func ProvideCycleRunner(cfg *config.Config, ctrl *usecase.AdmissionController, clk *clock.Cached, l *applogger.Logger) *usecase.CycleRunner {
	watch := make(usecase.StaticCandidates, 0, len(cfg.Admission.Watchlist))
	for _, w := range cfg.Admission.Watchlist {
		watch = append(watch, models.Candidate{
			Ticker:          w.Ticker,
			Indicator:       w.Indicator,
			Action:          models.Action(w.Action),
			ConfidenceScore: w.Confidence,
		})
	}
	r := usecase.NewCycleRunner(ctrl, watch, clk, cfg.Admission.Interval, cfg.Admission.RequireMarketOpen)
	r.SetLogger(l)
	return r
}

func ProvideOutcomeRecorder(stats repository.StatsStore, m repository.Metrics) *usecase.OutcomeRecorder {
	return usecase.NewOutcomeRecorder(stats, m)
}

// ProvideKafkaConsumer returns nil unless the outcome consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, recorder *usecase.OutcomeRecorder, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	consumer.RegisterHandler(usecase.NewKafkaOutcomesHandler(cfg.Kafka.OutcomesTopic, recorder))
	return consumer, nil
}

func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	ctrl *usecase.AdmissionController,
	recorder *usecase.OutcomeRecorder,
	rc *cache.RedisCache,
	audit repository.AuditSink,
) *api.AdmissionEchoHandler {
	h := api.NewAdmissionEchoHandler(l, ctrl, recorder, cfg.Admission.Deadline+cfg.Backend.StoreTimeout)
	h.AddHealthCheck("redis", rc.Ping)
	h.AddHealthCheck("audit", audit.Health)
	return h
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	audit repository.AuditSink,
	rc *cache.RedisCache,
	handler *api.AdmissionEchoHandler,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Runner:    runner,
		Collector: collector,
		Consumer:  consumer,
		Producer:  producer,
		Audit:     audit,
		Redis:     rc,
		Handler:   handler,
		Limiter:   limiter,
	})
}
