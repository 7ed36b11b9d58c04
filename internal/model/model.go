// Package model defines the persistence-facing records shared across the
// pool engine service. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool kinds.
const (
	KindCategorical = "categorical"
	KindThreshold   = "threshold"
)

// StakeRecord is an immutable journal row for one accepted stake.
// Once written, these are never modified or deleted; the journal is what
// makes a pool's ledger replayable.
type StakeRecord struct {
	ID        string          `json:"id" db:"id"`
	PoolID    string          `json:"pool_id" db:"pool_id"`
	PoolKind  string          `json:"pool_kind" db:"pool_kind"`
	TxID      int64           `json:"tx_id" db:"tx_id"` // engine-assigned, monotonic per pool
	Owner     string          `json:"owner" db:"owner"`
	Category  string          `json:"category" db:"category"` // category label or "Long"/"Short"
	Level     string          `json:"level" db:"level"`       // staked level as text
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SettlementRecord is the persisted result for one winner of a settlement
// run.
type SettlementRecord struct {
	ID        string          `json:"id" db:"id"`
	PoolID    string          `json:"pool_id" db:"pool_id"`
	Outcome   string          `json:"outcome" db:"outcome"` // resolved level as text
	TxID      int64           `json:"tx_id" db:"tx_id"`
	Owner     string          `json:"owner" db:"owner"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Payoff    decimal.Decimal `json:"payoff" db:"payoff"`
	Payout    decimal.Decimal `json:"payout" db:"payout"`
	SettledAt time.Time       `json:"settled_at" db:"settled_at"`
}
