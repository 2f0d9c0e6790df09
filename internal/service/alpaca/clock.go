package alpaca

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
)

type ClockClient interface {
	GetClock() (*alpaca.Clock, error)
}

// Clock reads the exchange clock from the trading API.
type Clock struct {
	client ClockClient
}

var _ domrepo.MarketClock = (*Clock)(nil)

func NewClock(client ClockClient) *Clock {
	return &Clock{client: client}
}

func NewTradingClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

func (c *Clock) Clock(ctx context.Context) (models.MarketClock, error) {
	clk, err := call(ctx, c.client.GetClock)
	if err != nil {
		return models.MarketClock{}, fmt.Errorf("alpaca clock: %w", err)
	}
	if clk == nil {
		return models.MarketClock{}, fmt.Errorf("alpaca clock: empty response")
	}
	return models.MarketClock{
		Timestamp: clk.Timestamp,
		IsOpen:    clk.IsOpen,
		NextOpen:  clk.NextOpen,
		NextClose: clk.NextClose,
	}, nil
}
