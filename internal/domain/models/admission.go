package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks caller errors. It is never turned into a rejection record.
	ErrInvalidInput  = errors.New("invalid input")
	ErrStatsNotFound = errors.New("intraday stats not found")
)

func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Action string

const (
	BuyToOpen   Action = "buy_to_open"
	SellToOpen  Action = "sell_to_open"
	SellToClose Action = "sell_to_close"
	BuyToClose  Action = "buy_to_close"
)

func (a Action) Valid() bool {
	switch a {
	case BuyToOpen, SellToOpen, SellToClose, BuyToClose:
		return true
	}
	return false
}

func (a Action) IsExit() bool {
	return a == SellToClose || a == BuyToClose
}

// Direction of the entry the action opens. Exits have no direction.
func (a Action) Direction() Direction {
	switch a {
	case BuyToOpen:
		return Long
	case SellToOpen:
		return Short
	}
	return NoDirection
}

type Direction int

const (
	NoDirection Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "none"
}

// State of one ticker inside an admission evaluation.
type State string

const (
	StatePending            State = "PENDING"
	StateValidating         State = "VALIDATING"
	StateRejectedValidation State = "REJECTED_VALIDATION"
	StateGating             State = "GATING"
	StateRejectedBandit     State = "REJECTED_BANDIT"
	StateAdmitted           State = "ADMITTED"
)

func (s State) Terminal() bool {
	return s == StateRejectedValidation || s == StateRejectedBandit || s == StateAdmitted
}

// TrendMetrics are derived from one bar window.
type TrendMetrics struct {
	MomentumScore     float64 `json:"momentum_score"`
	ContinuationScore float64 `json:"continuation_score"`
	PeakPrice         float64 `json:"peak_price"`
	BottomPrice       float64 `json:"bottom_price"`
	Explanation       string  `json:"explanation"`
}

// IntradayStats counts outcomes for one (ticker, indicator, trading day).
type IntradayStats struct {
	Ticker         string    `json:"ticker"`
	Indicator      string    `json:"indicator"`
	Date           string    `json:"date"` // exchange-local YYYY-MM-DD
	Successes      int       `json:"successes"`
	Failures       int       `json:"failures"`
	TotalDecisions int       `json:"total_decisions"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (s IntradayStats) Total() int { return s.Successes + s.Failures }

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func (o Outcome) Valid() bool { return o == OutcomeSuccess || o == OutcomeFailure }

// BanditDecision is the immutable record of one gate evaluation.
type BanditDecision struct {
	Decision        bool          `json:"decision"`
	Ticker          string        `json:"ticker"`
	Indicator       string        `json:"indicator"`
	Action          Action        `json:"action"`
	Reason          string        `json:"reason"`
	ConfidenceScore float64       `json:"confidence_score"`
	CurrentPrice    float64       `json:"current_price"`
	Timestamp       time.Time     `json:"timestamp"`
	Stats           IntradayStats `json:"stats_snapshot"`
}

// RejectionRecord explains why a ticker did not proceed.
type RejectionRecord struct {
	Ticker                string             `json:"ticker"`
	Indicator             string             `json:"indicator"`
	ReasonNotToEnterLong  string             `json:"reason_not_to_enter_long,omitempty"`
	ReasonNotToEnterShort string             `json:"reason_not_to_enter_short,omitempty"`
	TechnicalIndicators   map[string]float64 `json:"technical_indicators"`
	Timestamp             time.Time          `json:"timestamp"`
}

// DecisionRequest is the input of the decision operation. ConfidenceScore
// is a pointer so an absent field is told apart from an explicit 0.
type DecisionRequest struct {
	Ticker          string   `json:"ticker" validate:"required"`
	Indicator       string   `json:"indicator" validate:"required"`
	CurrentPrice    float64  `json:"current_price" validate:"gt=0"`
	Action          Action   `json:"action" validate:"required,oneof=buy_to_open sell_to_open sell_to_close buy_to_close"`
	ConfidenceScore *float64 `json:"confidence_score" validate:"required,gte=0,lte=1"`
}

type DecisionResponse struct {
	Decision      bool          `json:"decision"`
	Reason        string        `json:"reason"`
	Ticker        string        `json:"ticker"`
	Indicator     string        `json:"indicator"`
	Action        Action        `json:"action"`
	IntradayStats IntradayStats `json:"intraday_stats"`
}

type OutcomeRequest struct {
	Ticker    string  `json:"ticker" validate:"required"`
	Indicator string  `json:"indicator" validate:"required"`
	Outcome   Outcome `json:"outcome" validate:"required,oneof=success failure"`
}

type StatsQuery struct {
	Ticker    string `query:"ticker" validate:"required"`
	Indicator string `query:"indicator" validate:"required"`
}

// Candidate is one ticker considered in a cycle.
type Candidate struct {
	Ticker          string
	Indicator       string
	Action          Action
	ConfidenceScore float64
}
