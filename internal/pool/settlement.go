package pool

import (
	"cmp"
	"fmt"

	"github.com/shopspring/decimal"
)

// Settlement is the computed result attached to one winning risk. It is
// derived and transient: settlements are returned to the caller, never
// stored back into the ledger.
//
// The prima-facie and distance fields are populated only by threshold
// settlements; categorical settlements leave them zero.
type Settlement[L cmp.Ordered, E Event[L]] struct {
	Risk[L, E]

	// PoolShare is this position's amount over the distributable pool.
	PoolShare decimal.Decimal `json:"pool_share"`

	// WinningsShare is this position's amount over the total winning stake.
	WinningsShare decimal.Decimal `json:"winnings_share"`

	// Payoff is the final payoff multiple: Position.Payout / Position.Amount.
	Payoff decimal.Decimal `json:"payoff"`

	// PrimaFaciePayoff is the flat pro-rata multiple before reweighting.
	PrimaFaciePayoff decimal.Decimal `json:"prima_facie_payoff,omitempty"`

	// PrimaFaciePayout is Amount * PrimaFaciePayoff.
	PrimaFaciePayout decimal.Decimal `json:"prima_facie_payout,omitempty"`

	// InverseDistance is 1/|outcome - staked level|.
	InverseDistance decimal.Decimal `json:"inverse_distance,omitempty"`

	// NormalizedInverseDistance is InverseDistance over the sum across winners.
	NormalizedInverseDistance decimal.Decimal `json:"normalized_inverse_distance,omitempty"`

	// RedistributedAmount is the slice of the winning stake this position
	// receives after inverse-distance reweighting.
	RedistributedAmount decimal.Decimal `json:"redistributed_amount,omitempty"`
}

// ConservationError reports a post-settlement sum that does not match the
// pool's expected value within tolerance. It is a defect detector: it
// signals a broken settlement algorithm, never bad user input.
type ConservationError struct {
	Check    string
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("pool: conservation violated (%s): expected %s, got %s",
		e.Check, e.Expected, e.Actual)
}
