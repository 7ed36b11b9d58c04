package pool

import (
	"cmp"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSide is returned when a threshold event is staked without
	// choosing Long or Short.
	ErrInvalidSide = errors.New("pool: threshold event requires a Long or Short side")

	// ErrEmptyCategory is returned when a categorical event carries no label.
	ErrEmptyCategory = errors.New("pool: categorical event requires a non-empty category")
)

// Side is the direction of a threshold stake. SideNeither is the zero value
// and is only valid as a guard; it must never appear in an accepted stake.
type Side int

const (
	SideNeither Side = iota
	SideLong
	SideShort
)

// String returns the reporting label for the side.
func (s Side) String() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	default:
		return "Neither"
	}
}

// Event describes what a position is betting on, over outcome levels of
// type L. A categorical event bets on a named label (L = string); a
// threshold event bets on price direction relative to an integer level
// (L = int64).
type Event[L cmp.Ordered] interface {
	// Validate reports whether the event is well-formed for staking.
	Validate() error

	// IsWinner reports whether the event wins at the resolved level.
	IsWinner(level L) bool

	// Category is the grouping key for reporting. It depends on the side
	// of the bet, not on any resolved outcome.
	Category() string

	// Level is the level this event was staked at.
	Level() L

	// InverseDistanceWeight is the redistribution weight at the resolved
	// level: 1/|level - staked level| for a winning threshold event,
	// uniform 1 otherwise.
	InverseDistanceWeight(level L) decimal.Decimal
}

// CategoricalEvent is a bet on one label out of an open set of categories.
// Mutually exclusive: exactly one category wins.
type CategoricalEvent struct {
	Cat string `json:"category"`
}

// NewCategoricalEvent creates a categorical event for the given label.
func NewCategoricalEvent(category string) CategoricalEvent {
	return CategoricalEvent{Cat: category}
}

func (e CategoricalEvent) Validate() error {
	if e.Cat == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e CategoricalEvent) IsWinner(level string) bool {
	return e.Cat == level
}

func (e CategoricalEvent) Category() string { return e.Cat }

func (e CategoricalEvent) Level() string { return e.Cat }

// InverseDistanceWeight is uniform for categorical events: redistribution
// within a categorical pool is pure pro-rata.
func (e CategoricalEvent) InverseDistanceWeight(string) decimal.Decimal {
	return decimal.NewFromInt(1)
}

// ThresholdEvent is a bet on price direction relative to an integer level.
// A Long wins iff the outcome resolves strictly above the staked price, a
// Short iff strictly below. Equality is a loss for both sides.
type ThresholdEvent struct {
	Side  Side  `json:"side"`
	Price int64 `json:"price"`
}

// NewThresholdEvent creates a threshold event at the given side and price.
func NewThresholdEvent(side Side, price int64) ThresholdEvent {
	return ThresholdEvent{Side: side, Price: price}
}

func (e ThresholdEvent) Validate() error {
	if e.Side != SideLong && e.Side != SideShort {
		return ErrInvalidSide
	}
	return nil
}

func (e ThresholdEvent) IsWinner(level int64) bool {
	switch e.Side {
	case SideLong:
		return level > e.Price
	case SideShort:
		return level < e.Price
	default:
		return false
	}
}

func (e ThresholdEvent) Category() string { return e.Side.String() }

func (e ThresholdEvent) Level() int64 { return e.Price }

// InverseDistanceWeight returns 1/|level - price| when the event wins at
// the given level. The distance is never zero for a winner: equality is a
// loss on both sides. Non-winning events weigh in at 1 so the value is
// always safe to use.
func (e ThresholdEvent) InverseDistanceWeight(level int64) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if !e.IsWinner(level) {
		return one
	}
	dist := level - e.Price
	if dist < 0 {
		dist = -dist
	}
	return one.Div(decimal.NewFromInt(dist))
}
