// Package limits enforces per-trade and per-holder bounds on top of the
// curve's own validation.
//
// The curve only knows about supply; the limiter knows about the trader:
// how large a single trade may be, how much of a token one holder may own,
// and that a creator must keep at least one of their own keys.
package limits

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrBelowMinimumTrade is returned when a trade is smaller than the
	// configured minimum.
	ErrBelowMinimumTrade = errors.New("limits: trade below minimum amount")

	// ErrAboveMaximumTrade is returned when a trade is larger than the
	// configured maximum.
	ErrAboveMaximumTrade = errors.New("limits: trade above maximum amount")

	// ErrHoldingLimitExceeded is returned when a buy would give one holder
	// more than the allowed share of the token's max supply.
	ErrHoldingLimitExceeded = errors.New("limits: holding limit exceeded")

	// ErrInsufficientBalance is returned when a holder sells more than they own.
	ErrInsufficientBalance = errors.New("limits: insufficient holder balance")

	// ErrCreatorRetention is returned when a creator tries to sell their
	// last key.
	ErrCreatorRetention = errors.New("limits: creator cannot sell all keys")
)

// BasisPoints is the denominator for MaxHoldingBps.
const BasisPoints = 10_000

// TradeLimiter holds the trade bounds. A zero MaxTrade or MaxHoldingBps
// disables that check.
type TradeLimiter struct {
	// MinTrade is the smallest amount accepted for a single trade.
	MinTrade uint64

	// MaxTrade is the largest amount accepted for a single trade.
	MaxTrade uint64

	// MaxHoldingBps caps a single holder's balance at this many basis
	// points of the token's max supply. The creator is exempt.
	MaxHoldingBps uint64
}

// NewTradeLimiter creates a limiter. A minimum below one is raised to one.
func NewTradeLimiter(minTrade, maxTrade, maxHoldingBps uint64) *TradeLimiter {
	if minTrade < 1 {
		minTrade = 1
	}
	return &TradeLimiter{
		MinTrade:      minTrade,
		MaxTrade:      maxTrade,
		MaxHoldingBps: maxHoldingBps,
	}
}

// TradeCheck describes a prospective trade from the trader's side.
type TradeCheck struct {
	Amount    uint64
	IsBuy     bool
	Balance   uint64 // trader's current balance of the token
	MaxSupply uint64
	IsCreator bool
}

// CheckTrade returns nil if the trade respects every limit, or the first
// violated limit in the order: minimum, maximum, holding cap, balance,
// creator retention.
func (l *TradeLimiter) CheckTrade(req TradeCheck) error {
	if req.Amount < l.MinTrade {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimumTrade, req.Amount, l.MinTrade)
	}
	if l.MaxTrade > 0 && req.Amount > l.MaxTrade {
		return fmt.Errorf("%w: %d > %d", ErrAboveMaximumTrade, req.Amount, l.MaxTrade)
	}

	if req.IsBuy {
		if req.IsCreator || l.MaxHoldingBps == 0 {
			return nil
		}
		after := units(req.Balance).Add(units(req.Amount))
		if after.GreaterThan(l.HoldingCap(req.MaxSupply)) {
			return fmt.Errorf("%w: balance would reach %s of max %s",
				ErrHoldingLimitExceeded, after, l.HoldingCap(req.MaxSupply))
		}
		return nil
	}

	if req.Amount > req.Balance {
		return fmt.Errorf("%w: selling %d, holding %d", ErrInsufficientBalance, req.Amount, req.Balance)
	}
	if req.IsCreator && req.Amount == req.Balance {
		return ErrCreatorRetention
	}
	return nil
}

// HoldingCap returns the largest balance a non-creator may hold, in tokens.
func (l *TradeLimiter) HoldingCap(maxSupply uint64) decimal.Decimal {
	return units(maxSupply).Mul(units(l.MaxHoldingBps)).Div(decimal.NewFromInt(BasisPoints)).Floor()
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
