package pool

import (
	"cmp"

	"github.com/shopspring/decimal"
)

// Position is an immutable record of one staked amount. It is created once
// when a stake is accepted and never modified in the ledger; Payout is set
// only on settlement copies so the ledger stays re-playable.
type Position struct {
	ID           int64           `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	OwnerAccount string          `json:"owner_account"`
	FeeAccount   string          `json:"fee_account"`
	Payout       decimal.Decimal `json:"payout"`
}

// Risk pairs an event with the position staked on it. The event owns the
// position by composition; there is no back-reference.
type Risk[L cmp.Ordered, E Event[L]] struct {
	Event    E        `json:"event"`
	Position Position `json:"position"`
}

// WinningAmount returns the staked amount if the risk wins at the given
// level, zero otherwise.
func (r Risk[L, E]) WinningAmount(level L) decimal.Decimal {
	if r.Event.IsWinner(level) {
		return r.Position.Amount
	}
	return decimal.Zero
}
