package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectorConfig struct {
	FlushInterval  time.Duration
	MaxUnique      int // flush early once this many distinct events are buffered
	Topic          string
	PublishTimeout time.Duration
	Publisher      Publisher
}

// ErrorEvent is one de-duplicated error with its occurrence count.
type ErrorEvent struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type ErrorCollector struct {
	cfg    CollectorConfig
	mu     sync.Mutex
	events map[string]*ErrorEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewErrorCollector(cfg *CollectorConfig) *ErrorCollector {
	c := &ErrorCollector{
		cfg:    *cfg,
		events: make(map[string]*ErrorEvent),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if c.cfg.FlushInterval <= 0 {
		c.cfg.FlushInterval = 30 * time.Second
	}
	if c.cfg.MaxUnique <= 0 {
		c.cfg.MaxUnique = 100
	}
	if c.cfg.PublishTimeout <= 0 {
		c.cfg.PublishTimeout = 10 * time.Second
	}
	go c.loop()
	return c
}

func (c *ErrorCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := fingerprint(level, message, fields, caller)

	c.mu.Lock()
	if ev, ok := c.events[key]; ok {
		ev.Count++
		ev.LastSeen = now
	} else {
		c.events[key] = &ErrorEvent{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []ErrorEvent
	if len(c.events) >= c.cfg.MaxUnique {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		go c.publish(batch)
	}
}

// Pending returns the number of distinct buffered events.
func (c *ErrorCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *ErrorCollector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *ErrorCollector) flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	if batch != nil {
		c.publish(batch)
	}
}

func (c *ErrorCollector) takeLocked() []ErrorEvent {
	if len(c.events) == 0 {
		return nil
	}
	batch := make([]ErrorEvent, 0, len(c.events))
	for _, ev := range c.events {
		batch = append(batch, *ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.events = make(map[string]*ErrorEvent)
	return batch
}

func (c *ErrorCollector) publish(batch []ErrorEvent) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		// the logger itself is the failing sink here
		fmt.Fprintf(os.Stderr, "publish aggregated errors: %v\n", err)
	}
}

// Close flushes what is buffered and stops the background loop.
func (c *ErrorCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func fingerprint(level, message string, fields map[string]interface{}, caller string) string {
	raw, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
