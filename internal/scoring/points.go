// Package scoring computes completion points from hints used and difficulty.
package scoring

import (
	"errors"
	"fmt"
)

const (
	DefaultStartingPoints      = 100
	DefaultHintBasePenalty     = 10
	DefaultHintPenaltyIncrease = 5

	// floorPercent is the share of the starting points a solver always keeps.
	floorPercent = 10
)

// ErrInvalidDifficulty is returned for difficulties outside the bonus table.
var ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 4")

// ErrInvalidHints is returned for a negative hint count.
var ErrInvalidHints = errors.New("hints used must not be negative")

// difficultyBonus holds the multiplier per difficulty, in percent.
var difficultyBonus = map[int]int{
	1: 100,
	2: 120,
	3: 150,
	4: 200,
}

// Config carries the point constants.
type Config struct {
	StartingPoints      int
	HintBasePenalty     int
	HintPenaltyIncrease int
}

// DefaultConfig returns the documented defaults (100 / 10 / 5).
func DefaultConfig() Config {
	return Config{
		StartingPoints:      DefaultStartingPoints,
		HintBasePenalty:     DefaultHintBasePenalty,
		HintPenaltyIncrease: DefaultHintPenaltyIncrease,
	}
}

// Calculator is a pure points calculator. It is safe for concurrent use.
type Calculator struct {
	cfg Config
}

// New validates cfg and returns a Calculator.
func New(cfg Config) (*Calculator, error) {
	if cfg.StartingPoints <= 0 {
		return nil, fmt.Errorf("starting points must be positive, got %d", cfg.StartingPoints)
	}
	if cfg.HintBasePenalty < 0 || cfg.HintPenaltyIncrease < 0 {
		return nil, fmt.Errorf("hint penalties must not be negative, got %d/%d", cfg.HintBasePenalty, cfg.HintPenaltyIncrease)
	}
	return &Calculator{cfg: cfg}, nil
}

// Config returns the constants the calculator was built with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// HintCost is the cost of the k-th hint, 0-indexed.
func (c *Calculator) HintCost(k int) int {
	if k < 0 {
		k = 0
	}
	return c.cfg.HintBasePenalty + k*c.cfg.HintPenaltyIncrease
}

// NextHintCost previews the marginal cost of the next hint without consuming it.
func (c *Calculator) NextHintCost(hintsUsed int) int {
	return c.HintCost(hintsUsed)
}

// Deduction is the cumulative cost of the first hintsUsed hints.
func (c *Calculator) Deduction(hintsUsed int) int {
	if hintsUsed <= 0 {
		return 0
	}
	// Arithmetic series: n*base + inc*n(n-1)/2.
	return hintsUsed*c.cfg.HintBasePenalty + c.cfg.HintPenaltyIncrease*hintsUsed*(hintsUsed-1)/2
}

// Floor is the minimum raw score, ceil(starting * 10%).
func (c *Calculator) Floor() int {
	return ceilDiv(c.cfg.StartingPoints*floorPercent, 100)
}

// RawScore is the score before the difficulty bonus.
func (c *Calculator) RawScore(hintsUsed int) (int, error) {
	if hintsUsed < 0 {
		return 0, ErrInvalidHints
	}
	raw := c.cfg.StartingPoints - c.Deduction(hintsUsed)
	if floor := c.Floor(); raw < floor {
		raw = floor
	}
	return raw, nil
}

// Points returns the completion score for the given hints and difficulty,
// rounded up to the nearest integer.
func (c *Calculator) Points(hintsUsed, difficulty int) (int, error) {
	bonus, ok := difficultyBonus[difficulty]
	if !ok {
		return 0, ErrInvalidDifficulty
	}
	raw, err := c.RawScore(hintsUsed)
	if err != nil {
		return 0, err
	}
	return ceilDiv(raw*bonus, 100), nil
}

// ValidDifficulty reports whether d has an entry in the bonus table.
func ValidDifficulty(d int) bool {
	_, ok := difficultyBonus[d]
	return ok
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
