package scoring

import (
	"errors"
	"testing"
)

func newDefault(t *testing.T) *Calculator {
	t.Helper()
	calc, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return calc
}

func TestPointsScenarios(t *testing.T) {
	calc := newDefault(t)
	cases := []struct {
		name       string
		hints      int
		difficulty int
		want       int
	}{
		{"two hints easy", 2, 1, 75},
		{"no hints hard", 0, 3, 150},
		{"floor medium", 20, 2, 12},
		{"no hints expert", 0, 4, 200},
		{"one hint medium", 1, 2, 108},
	}
	for _, c := range cases {
		got, err := calc.Points(c.hints, c.difficulty)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: Points(%d,%d)=%d, want %d", c.name, c.hints, c.difficulty, got, c.want)
		}
	}
}

func TestHintCosts(t *testing.T) {
	calc := newDefault(t)
	want := []int{10, 15, 20, 25}
	for k, cost := range want {
		if got := calc.HintCost(k); got != cost {
			t.Fatalf("HintCost(%d)=%d, want %d", k, got, cost)
		}
		if got := calc.NextHintCost(k); got != cost {
			t.Fatalf("NextHintCost(%d)=%d, want %d", k, got, cost)
		}
	}
	if got := calc.Deduction(3); got != 45 {
		t.Fatalf("Deduction(3)=%d, want 45", got)
	}
}

func TestRawScoreProperties(t *testing.T) {
	calc := newDefault(t)
	floor := calc.Floor()
	if floor != 10 {
		t.Fatalf("floor=%d, want 10", floor)
	}

	prev, err := calc.RawScore(0)
	if err != nil {
		t.Fatalf("raw score: %v", err)
	}
	for hints := 1; hints <= 30; hints++ {
		raw, err := calc.RawScore(hints)
		if err != nil {
			t.Fatalf("raw score %d: %v", hints, err)
		}
		if raw < floor {
			t.Fatalf("raw score %d below floor at %d hints", raw, hints)
		}
		if prev > floor && raw >= prev {
			t.Fatalf("raw score not strictly decreasing at %d hints: %d -> %d", hints, prev, raw)
		}
		if prev == floor && raw != floor {
			t.Fatalf("raw score left the floor at %d hints", hints)
		}
		prev = raw
	}

	for difficulty := 1; difficulty <= 4; difficulty++ {
		for hints := 0; hints <= 30; hints++ {
			points, err := calc.Points(hints, difficulty)
			if err != nil {
				t.Fatalf("points: %v", err)
			}
			if points < floor {
				t.Fatalf("points %d below floor for hints=%d difficulty=%d", points, hints, difficulty)
			}
		}
	}
}

func TestFloorRoundsUp(t *testing.T) {
	calc, err := New(Config{StartingPoints: 95, HintBasePenalty: 50, HintPenaltyIncrease: 50})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := calc.Floor(); got != 10 {
		t.Fatalf("floor=%d, want ceil(9.5)=10", got)
	}
	got, err := calc.Points(5, 3)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if got != 15 {
		t.Fatalf("points=%d, want 15", got)
	}
}

func TestPointsRejectsInvalidInput(t *testing.T) {
	calc := newDefault(t)
	for _, d := range []int{0, 5, -1} {
		if _, err := calc.Points(0, d); !errors.Is(err, ErrInvalidDifficulty) {
			t.Fatalf("difficulty %d: expected ErrInvalidDifficulty, got %v", d, err)
		}
	}
	if _, err := calc.Points(-1, 1); !errors.Is(err, ErrInvalidHints) {
		t.Fatalf("expected ErrInvalidHints, got %v", err)
	}
}

func TestNewRejectsMalformedConfig(t *testing.T) {
	bad := []Config{
		{StartingPoints: 0, HintBasePenalty: 10, HintPenaltyIncrease: 5},
		{StartingPoints: 100, HintBasePenalty: -1, HintPenaltyIncrease: 5},
		{StartingPoints: 100, HintBasePenalty: 10, HintPenaltyIncrease: -5},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
