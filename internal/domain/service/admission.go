package service

import (
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

// TrendAnalyzer derives trend metrics from an ordered bar sequence.
type TrendAnalyzer interface {
	Analyze(bars []models.Bar) models.TrendMetrics
	AnalyzePosition(bars []models.Bar, entryTime time.Time, entryPrice float64) models.TrendMetrics
}

// Validator runs the technical rule chain. It stops at the first rule that
// blocks any of the requested directions; with no direction requested it
// stops once both are blocked.
type Validator interface {
	Validate(in models.ValidationInput, dirs ...models.Direction) models.ValidationOutcome
}

// DecisionGate is the exploration/exploitation gate over intraday counts.
type DecisionGate interface {
	CalculateDecision(successes, failures int, confidence float64, action models.Action) (bool, string)
}
