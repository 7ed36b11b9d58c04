// Package store defines the persistence interface for the pool engine's
// stake journal and settlement history. Implementations include PostgreSQL
// (source of truth), Redis (read-through cache), and in-memory (for
// testing). The engine itself never touches a store; the service layer
// journals around it.
package store

import (
	"context"

	"github.com/trustpooler/pool-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Immutable stake journal ---

	// InsertStake appends an immutable stake record.
	InsertStake(ctx context.Context, rec *model.StakeRecord) error

	// GetStakesByPool returns all stakes for a pool in tx-id order.
	GetStakesByPool(ctx context.Context, poolID string) ([]model.StakeRecord, error)

	// GetStakesByOwner returns all stakes for an owner account.
	GetStakesByOwner(ctx context.Context, owner string) ([]model.StakeRecord, error)

	// --- Settlement history ---

	// InsertSettlements appends the winner records of one settlement run.
	InsertSettlements(ctx context.Context, recs []model.SettlementRecord) error

	// GetSettlementsByPool returns all settlement records for a pool.
	GetSettlementsByPool(ctx context.Context, poolID string) ([]model.SettlementRecord, error)
}
