package usecase

import (
	"sync"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

// RejectionCollector buffers rejection records for a single cycle. It never
// persists anything; the cycle drains it once when every ticker is terminal.
type RejectionCollector struct {
	mu      sync.Mutex
	records []models.RejectionRecord
}

func NewRejectionCollector() *RejectionCollector {
	return &RejectionCollector{}
}

func (c *RejectionCollector) Add(r models.RejectionRecord) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *RejectionCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Drain returns the records in insertion order and empties the collector.
func (c *RejectionCollector) Drain() []models.RejectionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.records
	c.records = nil
	return out
}
