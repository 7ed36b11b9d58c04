package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/trustpooler/pool-engine/internal/model"
)

// pgxDB is the slice of pgxpool.Pool the store uses. Narrowed to an
// interface so transactional behavior is testable without a database.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	db pgxDB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) InsertStake(ctx context.Context, rec *model.StakeRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO stakes (id, pool_id, pool_kind, tx_id, owner, category, level, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9)`,
		rec.ID, rec.PoolID, rec.PoolKind, rec.TxID,
		rec.Owner, rec.Category, rec.Level,
		rec.Amount.String(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stake %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetStakesByPool(ctx context.Context, poolID string) ([]model.StakeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, pool_id, pool_kind, tx_id, owner, category, level,
		        amount::TEXT, created_at
		 FROM stakes WHERE pool_id = $1 ORDER BY tx_id`, poolID)
	if err != nil {
		return nil, fmt.Errorf("get stakes for pool %s: %w", poolID, err)
	}
	defer rows.Close()
	return scanStakes(rows)
}

func (s *PostgresStore) GetStakesByOwner(ctx context.Context, owner string) ([]model.StakeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, pool_id, pool_kind, tx_id, owner, category, level,
		        amount::TEXT, created_at
		 FROM stakes WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("get stakes for owner %s: %w", owner, err)
	}
	defer rows.Close()
	return scanStakes(rows)
}

// InsertSettlements writes the winner rows of one settlement run in a
// single transaction: a settlement is journaled entirely or not at all.
func (s *PostgresStore) InsertSettlements(ctx context.Context, recs []model.SettlementRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		_, err := tx.Exec(ctx,
			`INSERT INTO settlements (id, pool_id, outcome, tx_id, owner, amount, payoff, payout, settled_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
			rec.ID, rec.PoolID, rec.Outcome, rec.TxID, rec.Owner,
			rec.Amount.String(), rec.Payoff.String(), rec.Payout.String(),
			rec.SettledAt,
		)
		if err != nil {
			return fmt.Errorf("insert settlement %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSettlementsByPool(ctx context.Context, poolID string) ([]model.SettlementRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, pool_id, outcome, tx_id, owner,
		        amount::TEXT, payoff::TEXT, payout::TEXT, settled_at
		 FROM settlements WHERE pool_id = $1 ORDER BY settled_at, tx_id`, poolID)
	if err != nil {
		return nil, fmt.Errorf("get settlements for pool %s: %w", poolID, err)
	}
	defer rows.Close()

	var result []model.SettlementRecord
	for rows.Next() {
		var rec model.SettlementRecord
		var amount, payoff, payout string
		if err := rows.Scan(&rec.ID, &rec.PoolID, &rec.Outcome, &rec.TxID, &rec.Owner,
			&amount, &payoff, &payout, &rec.SettledAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		rec.Amount, _ = decimal.NewFromString(amount)
		rec.Payoff, _ = decimal.NewFromString(payoff)
		rec.Payout, _ = decimal.NewFromString(payout)
		result = append(result, rec)
	}
	return result, rows.Err()
}

type stakeRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStakes(rows stakeRows) ([]model.StakeRecord, error) {
	var result []model.StakeRecord
	for rows.Next() {
		var rec model.StakeRecord
		var amount string
		if err := rows.Scan(&rec.ID, &rec.PoolID, &rec.PoolKind, &rec.TxID,
			&rec.Owner, &rec.Category, &rec.Level,
			&amount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		rec.Amount, _ = decimal.NewFromString(amount)
		result = append(result, rec)
	}
	return result, rows.Err()
}
