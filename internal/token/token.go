// Package token handles creator key naming and the derivation of curve
// parameters for a new creator token.
package token

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
)

// MaxHandleLen is the longest accepted creator handle.
const MaxHandleLen = 32

// SymbolPrefix prefixes every key symbol.
const SymbolPrefix = "KEY-"

var (
	handleRegex = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

	// symbolRegex matches: KEY-{HANDLE}
	// Example: KEY-ALICE_42
	symbolRegex = regexp.MustCompile(`^KEY-([A-Z0-9_]{1,32})$`)
)

var (
	ErrInvalidHandle = errors.New("token: invalid handle")
	ErrInvalidSymbol = errors.New("token: invalid symbol")
	ErrInvalidTarget = errors.New("token: invalid target price")
)

// ParseHandle normalizes a creator handle: surrounding whitespace is
// trimmed and letters are lowercased. The result must be 1 to 32
// characters of [a-z0-9_].
func ParseHandle(name string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(name))
	if !handleRegex.MatchString(h) {
		return "", fmt.Errorf("%w: %q (expected 1-%d chars of a-z, 0-9, _)", ErrInvalidHandle, name, MaxHandleLen)
	}
	return h, nil
}

// Symbol returns the ticker symbol for a normalized handle.
func Symbol(handle string) string {
	return SymbolPrefix + strings.ToUpper(handle)
}

// ParseSymbol returns the handle behind a KEY-{HANDLE} symbol.
func ParseSymbol(symbol string) (string, error) {
	m := symbolRegex.FindStringSubmatch(symbol)
	if m == nil {
		return "", fmt.Errorf("%w: %s (expected %s{HANDLE})", ErrInvalidSymbol, symbol, SymbolPrefix)
	}
	return strings.ToLower(m[1]), nil
}

// minMultiplierNanos is 1.000000001 in units of 1e-9.
const minMultiplierNanos = 1_000_000_001

// DeriveMultiplier returns the largest multiplier, with at most
// curve.MultiplierPrecision fractional digits, for which a curve starting
// at basePrice reaches no more than targetPrice at maxSupply:
//
//	basePrice * r^maxSupply <= targetPrice
//
// It never returns less than 1.000000001, so a target below what the
// flattest curve reaches still yields a usable multiplier.
func DeriveMultiplier(basePrice, targetPrice decimal.Decimal, maxSupply uint64) (decimal.Decimal, error) {
	if !basePrice.IsPositive() || !basePrice.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: base price %s must be a positive integer", ErrInvalidTarget, basePrice)
	}
	if targetPrice.LessThan(basePrice) {
		return decimal.Zero, fmt.Errorf("%w: target %s below base %s", ErrInvalidTarget, targetPrice, basePrice)
	}
	if maxSupply == 0 {
		return decimal.Zero, fmt.Errorf("%w: max supply must be positive", ErrInvalidTarget)
	}

	fits := func(nanos int64) bool {
		c, err := curve.New(curve.Parameters{
			BasePrice:  basePrice,
			Multiplier: decimal.New(nanos, -curve.MultiplierPrecision),
			MaxSupply:  maxSupply,
			FeeRate:    decimal.Zero,
			MinPrice:   decimal.NewFromInt(1),
		})
		if err != nil {
			return false
		}
		p, err := c.Price(maxSupply)
		return err == nil && p.LessThanOrEqual(targetPrice)
	}

	lo := int64(minMultiplierNanos)
	if !fits(lo) {
		return decimal.New(lo, -curve.MultiplierPrecision), nil
	}

	// The float estimate only brackets the search; the answer is decided
	// by the curve's own fixed-point pricing.
	const maxNanos = int64(math.MaxInt64 / 4)
	hi := maxNanos
	estimate := math.Pow(targetPrice.Div(basePrice).InexactFloat64(), 1/float64(maxSupply)) * 1e9
	if !math.IsInf(estimate, 0) && !math.IsNaN(estimate) && estimate < float64(maxNanos)/2 {
		hi = int64(estimate*1.001) + 1000
	}
	for fits(hi) {
		if hi >= maxNanos {
			return decimal.New(maxNanos, -curve.MultiplierPrecision), nil
		}
		hi = min(hi*2, maxNanos)
	}

	// fits(lo) && !fits(hi)
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return decimal.New(lo, -curve.MultiplierPrecision), nil
}
