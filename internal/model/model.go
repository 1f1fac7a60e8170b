// Package model defines the domain types shared across the curve engine
// service. All monetary values use shopspring/decimal and are denominated
// in base units (lamports) unless a field says otherwise.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
)

// CurveState is the mutable part of a creator curve. It mirrors the
// on-chain keys account: supply and reserve plus the fee pools accrued from
// trades and tips.
type CurveState struct {
	Supply       uint64          `json:"supply" db:"supply"`
	Reserve      decimal.Decimal `json:"reserve" db:"reserve"`
	Price        decimal.Decimal `json:"price" db:"price"` // marginal price at Supply
	MarketCap    decimal.Decimal `json:"market_cap" db:"market_cap"`
	CreatorFees  decimal.Decimal `json:"creator_fees" db:"creator_fees"`
	PlatformFees decimal.Decimal `json:"platform_fees" db:"platform_fees"`
	HolderPool   decimal.Decimal `json:"holder_pool" db:"holder_pool"`
	TipsTotal    decimal.Decimal `json:"tips_total" db:"tips_total"`
	HoldersCount int64           `json:"holders_count" db:"holders_count"`
}

// Curve is one creator's bonding curve. Params never change after creation.
type Curve struct {
	ID        string           `json:"id" db:"id"`
	CreatorID string           `json:"creator_id" db:"creator_id"`
	Handle    string           `json:"handle" db:"handle"`
	Symbol    string           `json:"symbol" db:"symbol"` // KEY-{HANDLE}
	Params    curve.Parameters `json:"params"`
	CurveState
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Snapshot returns the engine view of the curve's state.
func (c *Curve) Snapshot() curve.State {
	return curve.State{Supply: c.Supply, Reserve: c.Reserve}
}

// LedgerEntry is an immutable record of a trade execution.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	CurveID      string          `json:"curve_id" db:"curve_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Side         curve.Side      `json:"side" db:"side"`
	Amount       uint64          `json:"amount" db:"amount"`
	Gross        decimal.Decimal `json:"gross" db:"gross"`
	Fee          decimal.Decimal `json:"fee" db:"fee"`
	Net          decimal.Decimal `json:"net" db:"net"` // paid by buyer or received by seller
	PricePerUnit decimal.Decimal `json:"price_per_unit" db:"price_per_unit"`
	SupplyAfter  uint64          `json:"supply_after" db:"supply_after"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// Holding is a user's balance of one creator token.
type Holding struct {
	UserID        string          `json:"user_id"`
	CurveID       string          `json:"curve_id"`
	Symbol        string          `json:"symbol"`
	Balance       uint64          `json:"balance"`
	CostBasis     decimal.Decimal `json:"cost_basis"`    // net paid on buys minus net received on sells
	CurrentValue  decimal.Decimal `json:"current_value"` // SellQuote net for the whole balance
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates all holdings for a user.
type Portfolio struct {
	UserID     string          `json:"user_id"`
	Holdings   []Holding       `json:"holdings"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
}
