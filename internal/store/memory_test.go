package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trustpooler/pool-engine/internal/model"
)

func stakeRec(id, poolID, owner string, txID int64, amount int64) *model.StakeRecord {
	return &model.StakeRecord{
		ID:        id,
		PoolID:    poolID,
		PoolKind:  model.KindCategorical,
		TxID:      txID,
		Owner:     owner,
		Category:  "default",
		Level:     "default",
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_StakeJournal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertStake(ctx, stakeRec("s1", "pool-a", "barney", 0, 500)); err != nil {
		t.Fatalf("InsertStake: %v", err)
	}
	if err := s.InsertStake(ctx, stakeRec("s2", "pool-a", "arnold", 1, 2500)); err != nil {
		t.Fatalf("InsertStake: %v", err)
	}
	if err := s.InsertStake(ctx, stakeRec("s3", "pool-b", "barney", 0, 100)); err != nil {
		t.Fatalf("InsertStake: %v", err)
	}

	byPool, err := s.GetStakesByPool(ctx, "pool-a")
	if err != nil {
		t.Fatalf("GetStakesByPool: %v", err)
	}
	if len(byPool) != 2 {
		t.Errorf("expected 2 stakes for pool-a, got %d", len(byPool))
	}
	if byPool[0].TxID != 0 || byPool[1].TxID != 1 {
		t.Error("stakes should come back in insertion order")
	}

	byOwner, err := s.GetStakesByOwner(ctx, "barney")
	if err != nil {
		t.Fatalf("GetStakesByOwner: %v", err)
	}
	if len(byOwner) != 2 {
		t.Errorf("expected 2 stakes for barney, got %d", len(byOwner))
	}

	empty, err := s.GetStakesByPool(ctx, "pool-c")
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown pool should yield empty journal, got %v, %v", empty, err)
	}
}

func TestMemoryStore_SettlementHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	recs := []model.SettlementRecord{
		{ID: "w1", PoolID: "pool-a", Outcome: "default", TxID: 0, Owner: "barney",
			Amount: decimal.NewFromInt(500), Payoff: decimal.NewFromFloat(5.82),
			Payout: decimal.NewFromInt(2910), SettledAt: time.Now().UTC()},
		{ID: "w2", PoolID: "pool-a", Outcome: "default", TxID: 1, Owner: "barney",
			Amount: decimal.NewFromInt(2500), Payoff: decimal.NewFromFloat(5.82),
			Payout: decimal.NewFromInt(14550), SettledAt: time.Now().UTC()},
	}
	if err := s.InsertSettlements(ctx, recs); err != nil {
		t.Fatalf("InsertSettlements: %v", err)
	}

	got, err := s.GetSettlementsByPool(ctx, "pool-a")
	if err != nil {
		t.Fatalf("GetSettlementsByPool: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 settlements, got %d", len(got))
	}
	if !got[0].Payout.Equal(decimal.NewFromInt(2910)) {
		t.Errorf("payout round-trip wrong: %s", got[0].Payout)
	}
}
