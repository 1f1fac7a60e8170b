package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceImpact returns the percentage change of the marginal price caused by
// moving supply by amount in the given direction:
//
//	|price(newSupply) - price(supply)| / price(supply) * 100
//
// truncated to PercentScale digits and capped at 100. The result is
// non-decreasing in amount for a fixed supply, which OptimalTradeSize
// relies on.
func (c *Curve) PriceImpact(supply, amount uint64, isBuy bool) (decimal.Decimal, error) {
	newSupply, err := c.shift(supply, amount, isBuy)
	if err != nil {
		return decimal.Zero, err
	}
	before, err := c.price(supply)
	if err != nil {
		return decimal.Zero, err
	}
	after, err := c.price(newSupply)
	if err != nil {
		return decimal.Zero, err
	}

	diff := new(uint256.Int)
	if after.Gt(before) {
		diff.Sub(after, before)
	} else {
		diff.Sub(before, after)
	}
	// before >= MinPrice > 0, so the division is always defined.
	return percentOf(toDecimal(diff), toDecimal(before)), nil
}

// Slippage returns |actual - expected| / |expected| * 100, capped at 100.
// An expected price of zero yields zero rather than an error.
func Slippage(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return decimal.Zero
	}
	return percentOf(actual.Sub(expected).Abs(), expected.Abs())
}

func percentOf(diff, base decimal.Decimal) decimal.Decimal {
	q, _ := diff.Mul(hundred).QuoRem(base, PercentScale)
	if q.GreaterThan(hundred) {
		return hundred
	}
	return q
}

// shift returns the supply after a trade, enforcing the curve bounds.
func (c *Curve) shift(supply, amount uint64, isBuy bool) (uint64, error) {
	if supply > c.params.MaxSupply {
		return 0, fmt.Errorf("%w: supply %d above max supply %d", ErrCapacityExceeded, supply, c.params.MaxSupply)
	}
	if isBuy {
		if amount > c.params.MaxSupply-supply {
			return 0, fmt.Errorf("%w: supply %d + amount %d > max supply %d",
				ErrCapacityExceeded, supply, amount, c.params.MaxSupply)
		}
		return supply + amount, nil
	}
	if amount > supply {
		return 0, fmt.Errorf("%w: cannot sell %d of %d", ErrInsufficientSupply, amount, supply)
	}
	return supply - amount, nil
}

// Validation is the outcome of ValidateTrade. Err is nil for a valid trade;
// otherwise it wraps exactly one of ErrInvalidAmount, ErrCapacityExceeded,
// ErrInsufficientSupply, ErrSlippageExceeded or ErrArithmeticOverflow.
type Validation struct {
	Err    error
	Impact decimal.Decimal
}

// Valid reports whether the trade passed every check.
func (v Validation) Valid() bool {
	return v.Err == nil
}

// Reason returns a stable machine-readable code for the failure, or "" if
// the trade is valid.
func (v Validation) Reason() string {
	return Code(v.Err)
}

// Code maps curve errors to stable string codes for API consumers.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInsufficientSupply):
		return "insufficient_supply"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	default:
		return "unknown"
	}
}

// ValidateTrade checks a prospective trade in order: amount, supply cap
// (buys), available supply (sells), then price impact against
// maxSlippagePercent.
func (c *Curve) ValidateTrade(supply, amount uint64, isBuy bool, maxSlippagePercent decimal.Decimal) Validation {
	if amount == 0 {
		return Validation{Err: ErrInvalidAmount}
	}
	if isBuy && (supply > c.params.MaxSupply || amount > c.params.MaxSupply-supply) {
		return Validation{Err: fmt.Errorf("%w: supply %d + amount %d > max supply %d",
			ErrCapacityExceeded, supply, amount, c.params.MaxSupply)}
	}
	if !isBuy && amount > supply {
		return Validation{Err: fmt.Errorf("%w: cannot sell %d of %d", ErrInsufficientSupply, amount, supply)}
	}

	impact, err := c.PriceImpact(supply, amount, isBuy)
	if err != nil {
		return Validation{Err: err}
	}
	if impact.GreaterThan(maxSlippagePercent) {
		return Validation{
			Err: fmt.Errorf("%w: price impact %s%% exceeds maximum %s%%",
				ErrSlippageExceeded, impact.String(), maxSlippagePercent.String()),
			Impact: impact,
		}
	}
	return Validation{Impact: impact}
}

// OptimalTradeSize returns the largest amount whose price impact stays at
// or below maxPriceImpactPercent, searching [1, MaxSupply-supply] for buys
// and [1, supply] for sells. It returns 0 when not even one token fits.
//
// The binary search is correct because Multiplier > 1 makes price impact
// non-decreasing in amount. Amounts whose price overflows count as
// exceeding the bound.
func (c *Curve) OptimalTradeSize(supply uint64, maxPriceImpactPercent decimal.Decimal, isBuy bool) (uint64, error) {
	if supply > c.params.MaxSupply {
		return 0, fmt.Errorf("%w: supply %d above max supply %d", ErrCapacityExceeded, supply, c.params.MaxSupply)
	}
	bound := supply
	if isBuy {
		bound = c.params.MaxSupply - supply
	}

	var best uint64
	lo, hi := uint64(1), bound
	for lo <= hi && hi > 0 {
		mid := lo + (hi-lo)/2
		impact, err := c.PriceImpact(supply, mid, isBuy)
		if err == nil && impact.LessThanOrEqual(maxPriceImpactPercent) {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best, nil
}

// TokensForBudget returns the largest number of tokens a buyer can get for
// budget base units, fee included.
func (c *Curve) TokensForBudget(supply uint64, budget decimal.Decimal) (uint64, error) {
	if !budget.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if supply > c.params.MaxSupply {
		return 0, fmt.Errorf("%w: supply %d above max supply %d", ErrCapacityExceeded, supply, c.params.MaxSupply)
	}

	var best uint64
	lo, hi := uint64(1), c.params.MaxSupply-supply
	for lo <= hi && hi > 0 {
		mid := lo + (hi-lo)/2
		q, err := c.BuyQuote(supply, mid)
		if err == nil && q.NetAmount.LessThanOrEqual(budget) {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best, nil
}

// Apply returns the state after executing q: buys add GrossAmount to the
// reserve, sells pay GrossAmount out of it. Fees are accounted by the
// caller and never touch the reserve.
func (c *Curve) Apply(state State, q Quote) (State, error) {
	if q.Supply != state.Supply {
		return State{}, fmt.Errorf("%w: quoted at supply %d, curve at %d", ErrStaleQuote, q.Supply, state.Supply)
	}
	newSupply, err := c.shift(state.Supply, q.Amount, q.Side == SideBuy)
	if err != nil {
		return State{}, err
	}

	reserve := state.Reserve
	if q.Side == SideBuy {
		reserve = reserve.Add(q.GrossAmount)
		if reserve.GreaterThan(maxAmountDec) {
			return State{}, ErrArithmeticOverflow
		}
	} else {
		if reserve.LessThan(q.GrossAmount) {
			return State{}, fmt.Errorf("%w: reserve %s < payout %s", ErrInsufficientReserve, reserve, q.GrossAmount)
		}
		reserve = reserve.Sub(q.GrossAmount)
	}
	return State{Supply: newSupply, Reserve: reserve}, nil
}
