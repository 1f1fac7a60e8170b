package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solsocial/curve-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateCurve(ctx context.Context, c *model.Curve) error {
	if err := s.primary.CreateCurve(ctx, c); err != nil {
		return err
	}
	s.cacheCurve(ctx, c)
	return nil
}

func (s *CachedStore) UpdateCurveState(ctx context.Context, id string, state model.CurveState) error {
	if err := s.primary.UpdateCurveState(ctx, id, state); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, curveKey(id))
	return nil
}

func (s *CachedStore) RecordTrade(ctx context.Context, curveID string, state model.CurveState, entry *model.LedgerEntry) error {
	if err := s.primary.RecordTrade(ctx, curveID, state, entry); err != nil {
		return err
	}
	// Invalidate the curve and the trader's holdings and balance.
	s.rdb.Del(ctx, curveKey(curveID), holdingsKey(entry.UserID), balanceKey(entry.UserID, entry.CurveID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCurve(ctx context.Context, id string) (*model.Curve, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, curveKey(id)).Bytes()
	if err == nil {
		var c model.Curve
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	// Cache miss: read from primary.
	c, err := s.primary.GetCurve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheCurve(ctx, c)
	return c, nil
}

func (s *CachedStore) GetCurveBySymbol(ctx context.Context, symbol string) (*model.Curve, error) {
	// Try cache via symbol→curveID mapping.
	curveID, err := s.rdb.Get(ctx, symbolKey(symbol)).Result()
	if err == nil {
		return s.GetCurve(ctx, curveID)
	}

	// Cache miss.
	c, err := s.primary.GetCurveBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// Cache both the curve and the symbol→ID mapping.
	s.cacheCurve(ctx, c)
	s.rdb.Set(ctx, symbolKey(symbol), c.ID, s.ttl)
	return c, nil
}

func (s *CachedStore) GetHolderBalance(ctx context.Context, userID, curveID string) (uint64, error) {
	if balance, err := s.rdb.Get(ctx, balanceKey(userID, curveID)).Uint64(); err == nil {
		return balance, nil
	}

	balance, err := s.primary.GetHolderBalance(ctx, userID, curveID)
	if err != nil {
		return 0, err
	}
	s.rdb.Set(ctx, balanceKey(userID, curveID), balance, s.ttl)
	return balance, nil
}

func (s *CachedStore) GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, holdingsKey(userID)).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	// Cache miss.
	holdings, err := s.primary.GetUserHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(userID), data, s.ttl)
	}
	return holdings, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListCurves(ctx context.Context) ([]model.Curve, error) {
	return s.primary.ListCurves(ctx)
}

func (s *CachedStore) GetLedgerEntriesByCurve(ctx context.Context, curveID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByCurve(ctx, curveID)
}

func (s *CachedStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheCurve(ctx context.Context, c *model.Curve) {
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, curveKey(c.ID), data, s.ttl)
	}
}

func curveKey(id string) string            { return fmt.Sprintf("curve:%s", id) }
func symbolKey(symbol string) string       { return fmt.Sprintf("symbol:%s", symbol) }
func holdingsKey(uid string) string        { return fmt.Sprintf("holdings:%s", uid) }
func balanceKey(uid, curveID string) string { return fmt.Sprintf("balance:%s:%s", uid, curveID) }
