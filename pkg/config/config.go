package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"5s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       float64       `yaml:"rate_limit" default:"50"` // requests per second per client
		RateBurst       int           `yaml:"rate_burst" default:"100"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	// Backend selects where rejection and decision records go.
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse"`
		StoreTimeout time.Duration `yaml:"store_timeout" default:"2s"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		DecisionsTopic  string   `yaml:"decisions_topic" default:"admission.decisions"`
		RejectionsTopic string   `yaml:"rejections_topic" default:"admission.rejections"`
		OutcomesTopic   string   `yaml:"outcomes_topic" default:"admission.outcomes"`
		LogsTopic       string   `yaml:"logs_topic" default:"admission.logs"`
		RequiredAcks    int      `yaml:"required_acks" default:"1"`
		Compression     string   `yaml:"compression" default:"snappy"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"200"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"admission-outcomes"`
			Workers    int           `yaml:"workers" default:"4"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"admission.outcomes.dlq"`
		} `yaml:"consumer"`
		ErrorLogs struct {
			Enabled       bool          `yaml:"enabled"`
			FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
			MaxUnique     int           `yaml:"max_unique" default:"100"`
		} `yaml:"error_logs"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"admission"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		MaxConnections   int           `yaml:"max_connections" default:"5"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"admission"`
		StatsTTL time.Duration `yaml:"stats_ttl" default:"48h"`
	} `yaml:"redis"`
	Alpaca struct {
		APIKey    string        `yaml:"api_key"`
		APISecret string        `yaml:"api_secret"`
		BaseURL   string        `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
		DataURL   string        `yaml:"data_url"`
		Feed      string        `yaml:"feed" default:"iex"`
		Timeframe string        `yaml:"timeframe" default:"1m"`
		Lookback  int           `yaml:"lookback" default:"30"` // bars requested per fetch
		ClockTTL  time.Duration `yaml:"clock_ttl" default:"30s"`
	} `yaml:"alpaca"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MinBars        int           `yaml:"min_bars" default:"5"`
	} `yaml:"finnhub"`
	Admission AdmissionConfig `yaml:"admission"`
}

type AdmissionConfig struct {
	Interval           time.Duration `yaml:"interval" default:"1s"`
	Deadline           time.Duration `yaml:"deadline" default:"900ms"`
	Concurrency        int           `yaml:"concurrency" default:"25"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" default:"800ms"`
	StatsTimeout       time.Duration `yaml:"stats_timeout" default:"200ms"`
	RequireMarketOpen  bool          `yaml:"require_market_open" default:"true"`
	Timezone           string        `yaml:"timezone" default:"America/New_York"`
	TrendWindow        int           `yaml:"trend_window" default:"5"`
	MaxSpread          float64       `yaml:"max_spread" default:"2.0"`
	MinContinuation    float64       `yaml:"min_continuation" default:"0.7"`
	ExtremeThreshold   float64       `yaml:"extreme_threshold" default:"1.0"`
	MinMomentum        float64       `yaml:"min_momentum" default:"3.0"`
	MaxMomentum        float64       `yaml:"max_momentum" default:"10.0"`
	AcceptanceBoundary float64       `yaml:"acceptance_boundary" default:"0.5"`
	DefaultConfidence  float64       `yaml:"default_confidence" default:"0.5"`
	Watchlist          []Candidate   `yaml:"watchlist"`
}

type Candidate struct {
	Ticker     string  `yaml:"ticker"`
	Indicator  string  `yaml:"indicator"`
	Action     string  `yaml:"action" default:"buy_to_open"`
	Confidence float64 `yaml:"confidence"`
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillWatchlist()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ALPACA_API_KEY_ID"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := getenv("ALPACA_API_SECRET_KEY"); v != "" {
		c.Alpaca.APISecret = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR port: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := getenv("WATCHLIST"); v != "" {
		list, err := ParseWatchlist(v)
		if err != nil {
			return err
		}
		c.Admission.Watchlist = list
		c.fillWatchlist()
	}
	return nil
}

// ParseWatchlist reads "TICKER:INDICATOR[:ACTION]" entries separated by commas.
func ParseWatchlist(s string) ([]Candidate, error) {
	var out []Candidate
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("watchlist entry %q must be TICKER:INDICATOR[:ACTION]", item)
		}
		cand := Candidate{Ticker: strings.ToUpper(parts[0]), Indicator: parts[1], Action: "buy_to_open"}
		if len(parts) == 3 {
			cand.Action = parts[2]
		}
		out = append(out, cand)
	}
	return out, nil
}

func (c *Config) fillWatchlist() {
	for i := range c.Admission.Watchlist {
		w := &c.Admission.Watchlist[i]
		if w.Action == "" {
			w.Action = "buy_to_open"
		}
		if w.Confidence == 0 {
			w.Confidence = c.Admission.DefaultConfidence
		}
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka backend")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when the outcome consumer is enabled")
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required when finnhub is enabled")
	}

	a := c.Admission
	if a.Concurrency < 1 {
		return fmt.Errorf("admission.concurrency must be >= 1")
	}
	if a.Deadline <= 0 || a.Deadline > a.Interval {
		return fmt.Errorf("admission.deadline must be positive and not exceed admission.interval")
	}
	if a.TrendWindow < 3 {
		return fmt.Errorf("admission.trend_window must be >= 3")
	}
	if a.MinMomentum >= a.MaxMomentum {
		return fmt.Errorf("admission.min_momentum must be below admission.max_momentum")
	}
	if a.AcceptanceBoundary <= 0 || a.AcceptanceBoundary > 1 {
		return fmt.Errorf("admission.acceptance_boundary must be in (0,1]")
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return fmt.Errorf("admission.timezone: %w", err)
	}
	for _, w := range a.Watchlist {
		if w.Ticker == "" || w.Indicator == "" {
			return fmt.Errorf("admission.watchlist entries need ticker and indicator")
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			return fmt.Errorf("admission.watchlist %s confidence must be in [0,1]", w.Ticker)
		}
	}
	return nil
}
