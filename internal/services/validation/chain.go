package validation

import (
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/service"
)

var _ service.Validator = (*Chain)(nil)

// Chain runs rules in order and stops at the first rule that blocks a
// requested direction. Later rules never overwrite an earlier reason.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// NewDefaultChain builds the standard order:
// data quality, liquidity, trend direction, continuation, price extreme, momentum.
func NewDefaultChain(t Thresholds) *Chain {
	if t.MinBars <= 0 {
		t.MinBars = 3
	}
	return NewChain(
		DataQualityRule{MinBars: t.MinBars},
		LiquidityRule{MaxSpread: t.MaxSpread},
		TrendDirectionRule{},
		ContinuationRule{MinContinuation: t.MinContinuation},
		PriceExtremeRule{Threshold: t.ExtremeThreshold},
		MomentumThresholdRule{Min: t.MinMomentum, Max: t.MaxMomentum},
	)
}

func (c *Chain) Rules() []Rule { return c.rules }

func (c *Chain) Validate(in models.ValidationInput, dirs ...models.Direction) models.ValidationOutcome {
	acc := models.Pass()
	for _, rule := range c.rules {
		out := rule.Evaluate(in)
		if out.Passed() {
			continue
		}
		acc = acc.Merge(out)
		if halted(acc, dirs) {
			break
		}
	}
	return acc
}

func halted(acc models.ValidationOutcome, dirs []models.Direction) bool {
	if len(dirs) == 0 {
		return acc.Blocks(models.Long) && acc.Blocks(models.Short)
	}
	for _, d := range dirs {
		if acc.Blocks(d) {
			return true
		}
	}
	return false
}

// ForAction validates an entry in its own direction. Exit actions are never gated.
func ForAction(v service.Validator, action models.Action, in models.ValidationInput) models.ValidationOutcome {
	if action.IsExit() {
		return models.Pass()
	}
	return v.Validate(in, action.Direction())
}
