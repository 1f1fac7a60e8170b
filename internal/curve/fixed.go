package curve

import (
	"fmt"
	"math/big"
	"math/bits"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Fixed-point values carry fixedDigits fractional decimal digits in a
// 256-bit integer. Every multiplication truncates toward zero. Priced
// amounts (base units) must fit in 128 bits; anything larger is reported as
// ErrArithmeticOverflow instead of wrapping.
const fixedDigits = 27

var (
	fixedOne = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(fixedDigits))

	// maxAmount is the largest representable priced amount: 2^128 - 1.
	maxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	// powCeiling bounds intermediate powers: any r^n above it prices every
	// curve with BasePrice >= 1 above maxAmount.
	powCeiling = new(uint256.Int).Mul(maxAmount, fixedOne)

	maxAmountDec = decimal.NewFromBigInt(maxAmount.ToBig(), 0)
)

// toInt converts a non-negative integral decimal to a 128-bit bounded integer.
func toInt(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() || !d.IsInteger() {
		return nil, fmt.Errorf("value %s is not a non-negative integer", d)
	}
	v, overflow := uint256.FromBig(d.BigInt())
	if overflow || v.Gt(maxAmount) {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}

// toFixed converts a decimal with at most fixedDigits fractional digits to
// fixed point. Extra digits are truncated.
func toFixed(d decimal.Decimal) (*uint256.Int, error) {
	v, overflow := uint256.FromBig(d.Shift(fixedDigits).BigInt())
	if overflow || d.IsNegative() {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}

func toDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), 0)
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// mulFixed returns floor(a*b / fixedOne), bounded by powCeiling.
func mulFixed(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, fixedOne)
	if overflow || z.Gt(powCeiling) {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// powers returns r^(2^j) for j = 0, 1, ... by repeated squaring, stopping
// before the first square above powCeiling.
func powers(r *uint256.Int) []*uint256.Int {
	pows := []*uint256.Int{new(uint256.Int).Set(r)}
	for len(pows) < 64 {
		sq, err := mulFixed(pows[len(pows)-1], pows[len(pows)-1])
		if err != nil {
			break
		}
		pows = append(pows, sq)
	}
	return pows
}

// powFixed computes r^n from the powers of r, multiplying in the set bits
// of n from the most significant down. Each product truncates to
// fixedDigits digits, so the order is part of the result.
func powFixed(pows []*uint256.Int, n uint64) (*uint256.Int, error) {
	result := new(uint256.Int).Set(fixedOne)
	for j := bits.Len64(n) - 1; j >= 0; j-- {
		if n>>uint(j)&1 == 0 {
			continue
		}
		// A missing power is above the ceiling, and so is any product
		// that includes it.
		if j >= len(pows) {
			return nil, ErrArithmeticOverflow
		}
		var err error
		if result, err = mulFixed(result, pows[j]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// scale returns floor(amount * f / fixedOne), bounded by maxAmount.
func scale(amount, f *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(amount, f, fixedOne)
	if overflow || z.Gt(maxAmount) {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func addAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || z.Gt(maxAmount) {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func mulAmount(a *uint256.Int, n uint64) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, uint256.NewInt(n))
	if overflow || z.Gt(maxAmount) {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}
