package bandit

import (
	"math"
	"strings"
	"testing"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

func acceptanceRate(e *Engine, s, f int, confidence float64, trials int) float64 {
	accepted := 0
	for i := 0; i < trials; i++ {
		if ok, _ := e.CalculateDecision(s, f, confidence, models.BuyToOpen); ok {
			accepted++
		}
	}
	return float64(accepted) / float64(trials)
}

func TestThompsonSampleMeanConverges(t *testing.T) {
	e := NewEngine(WithSeed(42))
	cases := [][2]int{{0, 0}, {9, 1}, {1, 9}, {20, 20}}
	for _, c := range cases {
		const n = 20000
		sum := 0.0
		for i := 0; i < n; i++ {
			p := e.ThompsonSample(c[0], c[1])
			if p < 0 || p > 1 {
				t.Fatalf("sample out of range: %v", p)
			}
			sum += p
		}
		want := PosteriorMean(c[0], c[1])
		if got := sum / n; math.Abs(got-want) > 0.01 {
			t.Fatalf("s=%d f=%d: mean %.4f, want %.4f", c[0], c[1], got, want)
		}
	}
}

func TestHigherSuccessRatioAcceptedMoreOften(t *testing.T) {
	e := NewEngine(WithSeed(7))
	good := acceptanceRate(e, 9, 1, 0.5, 4000)
	bad := acceptanceRate(e, 1, 9, 0.5, 4000)
	if good <= bad+0.5 {
		t.Fatalf("expected 9/1 (%.3f) to dominate 1/9 (%.3f)", good, bad)
	}
}

func TestHigherConfidenceAcceptedMoreOften(t *testing.T) {
	e := NewEngine(WithSeed(11))
	low := acceptanceRate(e, 3, 3, 0.1, 4000)
	high := acceptanceRate(e, 3, 3, 0.9, 4000)
	if high <= low {
		t.Fatalf("confidence 0.9 (%.3f) should beat 0.1 (%.3f)", high, low)
	}
}

func TestEffectiveProbabilityMonotonic(t *testing.T) {
	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.1 {
		v := EffectiveProbability(0.8, c)
		if v <= prev {
			t.Fatalf("not increasing at confidence %.1f", c)
		}
		prev = v
	}
	if EffectiveProbability(0.8, 1) != 0.8 {
		t.Fatalf("full confidence must keep p")
	}
}

func TestExitActionsAlwaysProceed(t *testing.T) {
	e := NewEngine(WithSeed(1))
	for _, a := range []models.Action{models.SellToClose, models.BuyToClose} {
		for i := 0; i < 50; i++ {
			ok, reason := e.CalculateDecision(0, 100, 0, a)
			if !ok || reason != ExitReason {
				t.Fatalf("%s: got (%v, %q)", a, ok, reason)
			}
		}
	}
}

func TestReasonNamesExplorationMode(t *testing.T) {
	e := NewEngine(WithSeed(3))
	_, fresh := e.CalculateDecision(0, 0, 0.9, models.BuyToOpen)
	if !strings.Contains(fresh, "exploring") || strings.Contains(fresh, "exploiting") {
		t.Fatalf("fresh reason = %q", fresh)
	}
	for _, part := range []string{"successes=0", "failures=0", "total=0"} {
		if !strings.Contains(fresh, part) {
			t.Fatalf("fresh reason missing %q: %q", part, fresh)
		}
	}

	_, seasoned := e.CalculateDecision(9, 1, 0.5, models.SellToOpen)
	if !strings.Contains(seasoned, "exploiting") || !strings.Contains(seasoned, "total=10") {
		t.Fatalf("seasoned reason = %q", seasoned)
	}
}

func TestSeededEnginesAgree(t *testing.T) {
	a, b := NewEngine(WithSeed(99)), NewEngine(WithSeed(99))
	for i := 0; i < 10; i++ {
		if a.ThompsonSample(2, 3) != b.ThompsonSample(2, 3) {
			t.Fatalf("seeded draws diverged at %d", i)
		}
	}
}
