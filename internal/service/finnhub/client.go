package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	drepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

// Client implements a MarketStream backed by Finnhub WebSocket trades.
type Client struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *applogger.Logger

	mu        sync.Mutex // guards conn, connected, symbols and writes
	conn      *websocket.Conn
	connected bool
	symbols   []string
}

var _ drepo.MarketStream = (*Client)(nil)

func New(apiKey, websocketURL string, reconnectDelay, pingInterval time.Duration) *Client {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         applogger.Nop(),
	}
}

func (c *Client) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("finnhub connected")
	return nil
}

// Subscribe adds symbols to the stream. They are replayed after a reconnect.
func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range symbols {
		s = strings.ToUpper(s)
		if err := c.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		if !contains(c.symbols, s) {
			c.symbols = append(c.symbols, s)
		}
	}
	c.logger.Info("finnhub subscribed", applogger.Strings("symbols", symbols))
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// decodeTrades returns the trades in a frame. Pings and other frame types
// yield nothing.
func decodeTrades(b []byte) []*models.Trade {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	out := make([]*models.Trade, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Trade{Symbol: d.S, Timestamp: d.T, Price: d.P, Volume: d.V})
	}
	return out
}

// Read streams trades until the connection fails or ctx ends. Both
// channels are closed when reading stops.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	rctx, cancel := context.WithCancel(ctx)
	go c.ping(rctx, conn)

	go func() {
		defer cancel()
		defer close(trades)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if rctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			for _, t := range decodeTrades(b) {
				select {
				case trades <- t:
				case <-rctx.Done():
					return
				default:
					// drop on backpressure
				}
			}
		}
	}()

	go func() {
		// Unblocks ReadMessage on shutdown.
		<-rctx.Done()
		if ctx.Err() != nil && conn != nil {
			_ = conn.Close()
		}
	}()

	return trades, errs
}

func (c *Client) ping(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("finnhub ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect closes the connection, waits reconnectDelay, dials again and
// replays subscriptions.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()
	if len(symbols) == 0 {
		return nil
	}
	return c.Subscribe(ctx, symbols)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
