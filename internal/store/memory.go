package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
	"github.com/solsocial/curve-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	curves map[string]*model.Curve
	ledger []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		curves: make(map[string]*model.Curve),
	}
}

func (s *MemoryStore) CreateCurve(_ context.Context, c *model.Curve) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.curves {
		if existing.Symbol == c.Symbol {
			return fmt.Errorf("%w: curve for %s", ErrAlreadyExists, c.Symbol)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *c
	s.curves[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCurve(_ context.Context, id string) (*model.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.curves[id]
	if !ok {
		return nil, fmt.Errorf("%w: curve %s", ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetCurveBySymbol(_ context.Context, symbol string) (*model.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.curves {
		if c.Symbol == symbol {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: curve for %s", ErrNotFound, symbol)
}

func (s *MemoryStore) ListCurves(_ context.Context) ([]model.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	curves := make([]model.Curve, 0, len(s.curves))
	for _, c := range s.curves {
		curves = append(curves, *c)
	}
	sort.Slice(curves, func(i, j int) bool {
		return curves[i].CreatedAt.After(curves[j].CreatedAt)
	})
	return curves, nil
}

func (s *MemoryStore) UpdateCurveState(_ context.Context, id string, state model.CurveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.curves[id]
	if !ok {
		return fmt.Errorf("%w: curve %s", ErrNotFound, id)
	}
	c.CurveState = state
	return nil
}

func (s *MemoryStore) RecordTrade(_ context.Context, curveID string, state model.CurveState, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.curves[curveID]
	if !ok {
		return fmt.Errorf("%w: curve %s", ErrNotFound, curveID)
	}
	if entry.CurveID != curveID {
		return fmt.Errorf("store: ledger entry for curve %s recorded against %s", entry.CurveID, curveID)
	}
	c.CurveState = state
	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByCurve(_ context.Context, curveID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.CurveID == curveID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByUser(_ context.Context, userID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetHolderBalance(_ context.Context, userID, curveID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var balance uint64
	for _, e := range s.ledger {
		if e.UserID != userID || e.CurveID != curveID {
			continue
		}
		if e.Side == curve.SideBuy {
			balance += e.Amount
		} else {
			balance -= e.Amount
		}
	}
	return balance, nil
}

// GetUserHoldings aggregates ledger entries into holdings per curve.
func (s *MemoryStore) GetUserHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[string]*model.Holding)
	var order []string

	// Aggregate from ledger (single lock, no re-entrant calls).
	for _, e := range s.ledger {
		if e.UserID != userID {
			continue
		}
		h, ok := agg[e.CurveID]
		if !ok {
			h = &model.Holding{
				UserID:    userID,
				CurveID:   e.CurveID,
				Symbol:    e.Symbol,
				CostBasis: decimal.Zero,
			}
			agg[e.CurveID] = h
			order = append(order, e.CurveID)
		}
		if e.Side == curve.SideBuy {
			h.Balance += e.Amount
			h.CostBasis = h.CostBasis.Add(e.Net)
		} else {
			h.Balance -= e.Amount
			h.CostBasis = h.CostBasis.Sub(e.Net)
		}
	}

	var holdings []model.Holding
	for _, id := range order {
		if h := agg[id]; h.Balance > 0 {
			holdings = append(holdings, *h)
		}
	}
	return holdings, nil
}
