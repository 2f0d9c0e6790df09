package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/service"
)

const (
	DefaultBoundary = 0.5
	ExitReason      = "exit action, no gating"
)

var _ service.DecisionGate = (*Engine)(nil)

// Engine is a Thompson-sampling gate over Beta(1+successes, 1+failures).
// The random source is shared, so draws are serialized.
type Engine struct {
	mu       sync.Mutex
	src      rand.Source
	boundary float64
}

type Option func(*Engine)

// WithSeed makes draws reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15) }
}

func WithSource(src rand.Source) Option {
	return func(e *Engine) { e.src = src }
}

func WithBoundary(b float64) Option {
	return func(e *Engine) {
		if b > 0 && b <= 1 {
			e.boundary = b
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	now := uint64(time.Now().UnixNano())
	e := &Engine{src: rand.NewPCG(now, now>>17|1), boundary: DefaultBoundary}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Boundary() float64 { return e.boundary }

// ThompsonSample draws one success probability from Beta(1+s, 1+f).
func (e *Engine) ThompsonSample(successes, failures int) float64 {
	dist := distuv.Beta{
		Alpha: 1 + float64(max(successes, 0)),
		Beta:  1 + float64(max(failures, 0)),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dist.Src = e.src
	return dist.Rand()
}

// EffectiveProbability discounts a sampled probability by caller confidence.
// Full confidence keeps p; zero confidence halves it.
func EffectiveProbability(p, confidence float64) float64 {
	c := math.Max(0, math.Min(1, confidence))
	return p * (0.5 + 0.5*c)
}

// PosteriorMean is (1+s)/(2+s+f).
func PosteriorMean(successes, failures int) float64 {
	s, f := float64(max(successes, 0)), float64(max(failures, 0))
	return (1 + s) / (2 + s + f)
}

// CalculateDecision gates an entry. Exit actions always proceed.
func (e *Engine) CalculateDecision(successes, failures int, confidence float64, action models.Action) (bool, string) {
	if action.IsExit() {
		return true, ExitReason
	}

	p := e.ThompsonSample(successes, failures)
	eff := EffectiveProbability(p, confidence)
	ok := eff >= e.boundary

	verdict := "reject"
	cmp := "<"
	if ok {
		verdict = "admit"
		cmp = ">="
	}

	total := successes + failures
	var mode string
	if total == 0 {
		mode = "exploring: no intraday history yet (successes=0, failures=0, total=0), prior Beta(1,1)"
	} else {
		mode = fmt.Sprintf("exploiting: intraday record successes=%d, failures=%d, total=%d, posterior mean=%.3f",
			successes, failures, total, PosteriorMean(successes, failures))
	}

	return ok, fmt.Sprintf("%s; %s %s: sampled p=%.3f, confidence=%.2f, effective=%.3f %s %.2f",
		mode, verdict, action.Direction(), p, confidence, eff, cmp, e.boundary)
}
