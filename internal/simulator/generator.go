package simulator

import (
	"math/rand"

	"binwatch/internal/models"
)

// Model parameters
const (
	FullLevel = 90

	firstMin, firstMax       = 10, 35
	emptyMin, emptyMax       = 0, 18
	bigJumpMin, bigJumpMax   = 10, 30
	decreaseMin, decreaseMax = 2, 8
	growthMin, growthMax     = 1, 8

	probBigJump         = 0.12
	probSmallDecrease   = 0.12
	probEmptyWhenFull   = 0.25
	emptyChanceStep     = 0.15
	fullStreakGrace     = 2
	probOccasionalEmpty = 0.02
)

// LevelState is the generator memory for one bin
type LevelState struct {
	HasLast bool
	Last    int
	// Consecutive readings at or above FullLevel
	FullStreak int
}

// Model draws the next fill level of a bin
type Model struct {
	rng *rand.Rand
}

// NewModel creates a model; the caller owns seeding
func NewModel(rng *rand.Rand) *Model {
	return &Model{rng: rng}
}

// EmptyChance is the probability that a bin which has been full for streak
// readings gets emptied on the next draw
func EmptyChance(streak int) float64 {
	extra := streak - fullStreakGrace
	if extra < 0 {
		extra = 0
	}
	return probEmptyWhenFull + emptyChanceStep*float64(extra)
}

// Next returns the next level and updates state
func (m *Model) Next(s *LevelState) int {
	if !s.HasLast {
		level := m.between(firstMin, firstMax)
		s.HasLast, s.Last = true, level
		s.FullStreak = 0
		if level >= FullLevel {
			s.FullStreak = 1
		}
		return level
	}

	var empty bool
	if s.Last >= FullLevel {
		s.FullStreak++
		empty = m.rng.Float64() < EmptyChance(s.FullStreak)
	} else {
		s.FullStreak = 0
		empty = m.rng.Float64() < probOccasionalEmpty
	}

	if empty {
		level := m.between(emptyMin, emptyMax)
		s.Last, s.FullStreak = level, 0
		return level
	}

	var delta int
	switch r := m.rng.Float64(); {
	case r < probBigJump:
		delta = m.between(bigJumpMin, bigJumpMax)
	case r < probBigJump+probSmallDecrease:
		delta = -m.between(decreaseMin, decreaseMax)
	default:
		delta = m.between(growthMin, growthMax)
	}

	level := models.ClampLevel(s.Last + delta)
	s.Last = level
	if level >= FullLevel {
		s.FullStreak++
	} else {
		s.FullStreak = 0
	}
	return level
}

// between returns a uniform integer in [lo, hi]
func (m *Model) between(lo, hi int) int {
	return lo + m.rng.Intn(hi-lo+1)
}
