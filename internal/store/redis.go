package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustpooler/pool-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for per-pool journal reads. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Writes (write to primary, invalidate cache) ---

func (s *CachedStore) InsertStake(ctx context.Context, rec *model.StakeRecord) error {
	if err := s.primary.InsertStake(ctx, rec); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, stakesKey(rec.PoolID))
	return nil
}

func (s *CachedStore) InsertSettlements(ctx context.Context, recs []model.SettlementRecord) error {
	if err := s.primary.InsertSettlements(ctx, recs); err != nil {
		return err
	}
	if len(recs) > 0 {
		s.rdb.Del(ctx, settlementsKey(recs[0].PoolID))
	}
	return nil
}

// --- Reads (check cache first) ---

func (s *CachedStore) GetStakesByPool(ctx context.Context, poolID string) ([]model.StakeRecord, error) {
	data, err := s.rdb.Get(ctx, stakesKey(poolID)).Bytes()
	if err == nil {
		var recs []model.StakeRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	// Cache miss: read from primary.
	recs, err := s.primary.GetStakesByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, stakesKey(poolID), data, s.ttl)
	}
	return recs, nil
}

func (s *CachedStore) GetSettlementsByPool(ctx context.Context, poolID string) ([]model.SettlementRecord, error) {
	data, err := s.rdb.Get(ctx, settlementsKey(poolID)).Bytes()
	if err == nil {
		var recs []model.SettlementRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.GetSettlementsByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, settlementsKey(poolID), data, s.ttl)
	}
	return recs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetStakesByOwner(ctx context.Context, owner string) ([]model.StakeRecord, error) {
	return s.primary.GetStakesByOwner(ctx, owner)
}

// --- Cache keys ---

func stakesKey(poolID string) string      { return fmt.Sprintf("stakes:%s", poolID) }
func settlementsKey(poolID string) string { return fmt.Sprintf("settlements:%s", poolID) }
