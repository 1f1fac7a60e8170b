package curve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidParameters is returned when curve parameters violate their
	// invariants (multiplier > 1, 0 <= fee < 1, positive prices and supply).
	ErrInvalidParameters = errors.New("curve: invalid curve parameters")

	// ErrInvalidAmount is returned for non-positive trade amounts.
	ErrInvalidAmount = errors.New("curve: amount must be positive")

	// ErrCapacityExceeded is returned when a buy would push supply past MaxSupply.
	ErrCapacityExceeded = errors.New("curve: supply cap exceeded")

	// ErrInsufficientSupply is returned when a sell exceeds circulating supply.
	ErrInsufficientSupply = errors.New("curve: insufficient supply")

	// ErrSlippageExceeded is returned when price impact exceeds the caller's tolerance.
	ErrSlippageExceeded = errors.New("curve: slippage tolerance exceeded")

	// ErrArithmeticOverflow is returned when a priced quantity does not fit
	// in 128 bits. It signals parameters that are too aggressive for the
	// supply range, not a user error.
	ErrArithmeticOverflow = errors.New("curve: arithmetic overflow")

	// ErrInsufficientReserve is returned when a sell would pay out more than
	// the curve's reserve balance holds.
	ErrInsufficientReserve = errors.New("curve: insufficient reserve balance")

	// ErrStaleQuote is returned by Apply when the quote was priced against a
	// different supply than the state it is applied to.
	ErrStaleQuote = errors.New("curve: quote does not match curve state")
)

const (
	// MultiplierPrecision is the maximum number of fractional digits
	// accepted for the per-unit multiplier.
	MultiplierPrecision int32 = 9

	// PercentScale is the number of fractional digits kept (by truncation)
	// for price impact and slippage percentages.
	PercentScale int32 = 10

	// DisplayScale is the number of fractional digits of PricePerUnit.
	DisplayScale int32 = 9

	// MaxAPYPercent caps APY estimates for near-zero holdings.
	MaxAPYPercent = 10000.0

	// LamportsPerSOL converts base units to the human-scale unit used for
	// PricePerUnit.
	LamportsPerSOL int64 = 1_000_000_000
)

// Parameters are the per-curve constants. They are passed explicitly so a
// process can price any number of creator curves side by side.
type Parameters struct {
	BasePrice  decimal.Decimal `json:"base_price"` // base units at supply 0
	Multiplier decimal.Decimal `json:"multiplier"` // per-unit growth factor, > 1
	MaxSupply  uint64          `json:"max_supply"`
	FeeRate    decimal.Decimal `json:"fee_rate"`  // fraction in [0, 1)
	MinPrice   decimal.Decimal `json:"min_price"` // price floor in base units
}

// DefaultParameters returns the reference social-token curve: 0.001 SOL
// base price growing 10% per token, a 2.5% fee and a 0.0001 SOL floor.
func DefaultParameters() Parameters {
	return Parameters{
		BasePrice:  decimal.NewFromInt(1_000_000),
		Multiplier: decimal.RequireFromString("1.1"),
		MaxSupply:  1_000_000,
		FeeRate:    decimal.RequireFromString("0.025"),
		MinPrice:   decimal.NewFromInt(100_000),
	}
}

// Validate checks the parameter invariants.
func (p Parameters) Validate() error {
	one := decimal.NewFromInt(1)

	if !p.BasePrice.IsPositive() || !p.BasePrice.IsInteger() {
		return fmt.Errorf("%w: base price must be a positive integer, got %s", ErrInvalidParameters, p.BasePrice)
	}
	if !p.MinPrice.IsPositive() || !p.MinPrice.IsInteger() {
		return fmt.Errorf("%w: min price must be a positive integer, got %s", ErrInvalidParameters, p.MinPrice)
	}
	if !p.Multiplier.GreaterThan(one) {
		return fmt.Errorf("%w: multiplier must be > 1, got %s", ErrInvalidParameters, p.Multiplier)
	}
	if !p.Multiplier.Shift(MultiplierPrecision).IsInteger() {
		return fmt.Errorf("%w: multiplier has more than %d fractional digits: %s",
			ErrInvalidParameters, MultiplierPrecision, p.Multiplier)
	}
	if p.FeeRate.IsNegative() || !p.FeeRate.LessThan(one) {
		return fmt.Errorf("%w: fee rate must be in [0, 1), got %s", ErrInvalidParameters, p.FeeRate)
	}
	if p.MaxSupply == 0 {
		return fmt.Errorf("%w: max supply must be positive", ErrInvalidParameters)
	}
	if _, err := toInt(p.BasePrice); err != nil {
		return fmt.Errorf("%w: base price: %v", ErrInvalidParameters, err)
	}
	if _, err := toInt(p.MinPrice); err != nil {
		return fmt.Errorf("%w: min price: %v", ErrInvalidParameters, err)
	}
	return nil
}

// State is the mutable part of a curve: circulating supply and the reserve
// backing it. Callers must read both fields from one consistent snapshot.
type State struct {
	Supply  uint64          `json:"supply"`
	Reserve decimal.Decimal `json:"reserve"`
}
