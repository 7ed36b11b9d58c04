package store

import (
	"context"
	"sync"

	"github.com/trustpooler/pool-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	stakes      []model.StakeRecord
	settlements []model.SettlementRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertStake(_ context.Context, rec *model.StakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stakes = append(s.stakes, *rec)
	return nil
}

func (s *MemoryStore) GetStakesByPool(_ context.Context, poolID string) ([]model.StakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.StakeRecord
	for _, r := range s.stakes {
		if r.PoolID == poolID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetStakesByOwner(_ context.Context, owner string) ([]model.StakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.StakeRecord
	for _, r := range s.stakes {
		if r.Owner == owner {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertSettlements(_ context.Context, recs []model.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements = append(s.settlements, recs...)
	return nil
}

func (s *MemoryStore) GetSettlementsByPool(_ context.Context, poolID string) ([]model.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SettlementRecord
	for _, r := range s.settlements {
		if r.PoolID == poolID {
			result = append(result, r)
		}
	}
	return result, nil
}
