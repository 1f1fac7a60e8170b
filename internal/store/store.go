// Package store defines the persistence interface for the curve engine
// service. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/solsocial/curve-engine/internal/model"
)

var (
	// ErrNotFound is returned when a curve does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a curve's symbol is already taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Curve operations ---

	// CreateCurve persists a new curve. Symbols are unique.
	CreateCurve(ctx context.Context, c *model.Curve) error

	// GetCurve retrieves a curve by its ID.
	GetCurve(ctx context.Context, id string) (*model.Curve, error)

	// GetCurveBySymbol retrieves a curve by its KEY-{HANDLE} symbol.
	GetCurveBySymbol(ctx context.Context, symbol string) (*model.Curve, error)

	// ListCurves returns all curves, newest first.
	ListCurves(ctx context.Context) ([]model.Curve, error)

	// UpdateCurveState replaces the mutable state of a curve.
	UpdateCurveState(ctx context.Context, id string, state model.CurveState) error

	// --- Immutable ledger ---

	// RecordTrade replaces the curve's state and appends the trade's ledger
	// entry as one atomic write: either both are stored or neither is.
	RecordTrade(ctx context.Context, curveID string, state model.CurveState, entry *model.LedgerEntry) error

	// GetLedgerEntriesByCurve returns all trades for a curve, oldest first.
	GetLedgerEntriesByCurve(ctx context.Context, curveID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByUser returns all trades for a user, oldest first.
	GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error)

	// --- Holdings ---

	// GetHolderBalance returns the user's token balance on one curve,
	// derived from the ledger. Unknown users hold zero.
	GetHolderBalance(ctx context.Context, userID, curveID string) (uint64, error)

	// GetUserHoldings returns every curve where the user holds a positive
	// balance, with Balance and CostBasis filled in.
	GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error)
}
