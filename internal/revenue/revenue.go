// Package revenue splits trade fees and tips between a token's creator, the
// platform and the token's holders.
//
// Creator and platform shares are floored; the holder pool receives the
// remainder, so the three parts always sum to the input exactly.
package revenue

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSharePercentage is returned when a share is negative, above
	// 100, or the shares together exceed 100.
	ErrInvalidSharePercentage = errors.New("revenue: invalid share percentage")

	// ErrInvalidTokenSupply is returned when a pro-rata reward is requested
	// against zero supply.
	ErrInvalidTokenSupply = errors.New("revenue: token supply must be positive")

	// ErrNegativeAmount is returned when asked to split a negative amount.
	ErrNegativeAmount = errors.New("revenue: amount must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Shares is the percentage of each split that goes to the creator and to
// the platform. Whatever is left belongs to holders.
type Shares struct {
	CreatorPct  decimal.Decimal `json:"creator_pct"`
	PlatformPct decimal.Decimal `json:"platform_pct"`
}

// Validate checks that both shares lie in [0, 100] and sum to at most 100.
func (s Shares) Validate() error {
	for _, pct := range []decimal.Decimal{s.CreatorPct, s.PlatformPct} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s", ErrInvalidSharePercentage, pct)
		}
	}
	if sum := s.CreatorPct.Add(s.PlatformPct); sum.GreaterThan(hundred) {
		return fmt.Errorf("%w: shares sum to %s", ErrInvalidSharePercentage, sum)
	}
	return nil
}

// Distribution is the result of a split, in base units.
type Distribution struct {
	Creator  decimal.Decimal `json:"creator"`
	Platform decimal.Decimal `json:"platform"`
	Holders  decimal.Decimal `json:"holders"`
}

// Total returns the sum of all three parts.
func (d Distribution) Total() decimal.Decimal {
	return d.Creator.Add(d.Platform).Add(d.Holders)
}

// Split divides total (base units, integral) according to the given
// percentages.
func Split(total, creatorPct, platformPct decimal.Decimal) (Distribution, error) {
	return Shares{CreatorPct: creatorPct, PlatformPct: platformPct}.Split(total)
}

// Split divides total according to s.
func (s Shares) Split(total decimal.Decimal) (Distribution, error) {
	if err := s.Validate(); err != nil {
		return Distribution{}, err
	}
	if total.IsNegative() {
		return Distribution{}, fmt.Errorf("%w: %s", ErrNegativeAmount, total)
	}

	creator := total.Mul(s.CreatorPct).Shift(-2).Floor()
	platform := total.Mul(s.PlatformPct).Shift(-2).Floor()
	return Distribution{
		Creator:  creator,
		Platform: platform,
		Holders:  total.Sub(creator).Sub(platform),
	}, nil
}

// HolderReward returns a holder's pro-rata share of pool:
// floor(pool * balance / supply).
func HolderReward(pool decimal.Decimal, balance, supply uint64) (decimal.Decimal, error) {
	if supply == 0 {
		return decimal.Zero, ErrInvalidTokenSupply
	}
	if balance > supply {
		return decimal.Zero, fmt.Errorf("%w: balance %d exceeds supply %d", ErrInvalidTokenSupply, balance, supply)
	}
	if pool.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeAmount, pool)
	}
	reward, _ := pool.Mul(units(balance)).QuoRem(units(supply), 0)
	return reward, nil
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
