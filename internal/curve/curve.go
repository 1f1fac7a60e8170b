// Package curve implements the exponential bonding curve that prices
// creator social tokens.
//
// The price of the token at circulating supply s is
//
//	price(s) = max(MinPrice, floor(BasePrice * Multiplier^s))
//
// and the cost of a trade is the discrete integral of price over the supply
// range the trade adds or removes. All monetary values use
// shopspring/decimal at the package boundary. Internally the curve
// computes in checked 256-bit fixed point with a 128-bit ceiling on every
// priced amount.
//
// A Curve is immutable and holds no trade state, so one instance may be
// shared by any number of goroutines.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideOf maps the isBuy flag used across the API to a Side.
func SideOf(isBuy bool) Side {
	if isBuy {
		return SideBuy
	}
	return SideSell
}

// Quote is the priced result of a prospective trade.
type Quote struct {
	Side               Side            `json:"side"`
	Supply             uint64          `json:"supply"` // supply the quote was priced against
	Amount             uint64          `json:"amount"`
	UnitPriceAtEdge    decimal.Decimal `json:"unit_price_at_edge"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
	Fee                decimal.Decimal `json:"fee"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	PricePerUnit       decimal.Decimal `json:"price_per_unit"` // average gross price in SOL
	ResultingMarketCap decimal.Decimal `json:"resulting_market_cap"`
	PriceImpact        decimal.Decimal `json:"price_impact"`
}

// Curve prices trades for one set of Parameters.
type Curve struct {
	params   Parameters
	base     *uint256.Int
	minPrice *uint256.Int
	pows     []*uint256.Int // Multiplier^(2^j) in fixed point
}

// New validates params and returns a Curve for them.
func New(params Parameters) (*Curve, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, _ := toInt(params.BasePrice)
	minPrice, _ := toInt(params.MinPrice)
	ratio, err := toFixed(params.Multiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: multiplier: %v", ErrInvalidParameters, err)
	}
	return &Curve{
		params:   params,
		base:     base,
		minPrice: minPrice,
		pows:     powers(ratio),
	}, nil
}

// Parameters returns the curve's parameters.
func (c *Curve) Parameters() Parameters {
	return c.params
}

// Price returns the marginal price of the token at the given supply.
func (c *Curve) Price(supply uint64) (decimal.Decimal, error) {
	p, err := c.price(supply)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(p), nil
}

// MarketCap returns price(supply) * supply.
func (c *Curve) MarketCap(supply uint64) (decimal.Decimal, error) {
	mc, err := c.marketCap(supply)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(mc), nil
}

// BuyQuote prices buying amount tokens at the given supply. The buyer pays
// GrossAmount plus Fee.
func (c *Curve) BuyQuote(supply, amount uint64) (Quote, error) {
	if amount == 0 {
		return Quote{}, ErrInvalidAmount
	}
	if supply > c.params.MaxSupply || amount > c.params.MaxSupply-supply {
		return Quote{}, fmt.Errorf("%w: supply %d + amount %d > max supply %d",
			ErrCapacityExceeded, supply, amount, c.params.MaxSupply)
	}

	newSupply := supply + amount
	gross, err := c.sumRange(supply, amount)
	if err != nil {
		return Quote{}, err
	}
	edge, err := c.price(newSupply - 1)
	if err != nil {
		return Quote{}, err
	}
	return c.quote(SideBuy, supply, amount, newSupply, gross, edge)
}

// SellQuote prices selling amount tokens at the given supply. The seller
// receives GrossAmount minus Fee.
func (c *Curve) SellQuote(supply, amount uint64) (Quote, error) {
	if amount == 0 {
		return Quote{}, ErrInvalidAmount
	}
	if amount > supply {
		return Quote{}, fmt.Errorf("%w: cannot sell %d of %d", ErrInsufficientSupply, amount, supply)
	}

	newSupply := supply - amount
	gross, err := c.sumRange(newSupply, amount)
	if err != nil {
		return Quote{}, err
	}
	edge, err := c.price(newSupply)
	if err != nil {
		return Quote{}, err
	}
	return c.quote(SideSell, supply, amount, newSupply, gross, edge)
}

// Quote dispatches to BuyQuote or SellQuote.
func (c *Curve) Quote(supply, amount uint64, isBuy bool) (Quote, error) {
	if isBuy {
		return c.BuyQuote(supply, amount)
	}
	return c.SellQuote(supply, amount)
}

func (c *Curve) quote(side Side, supply, amount, newSupply uint64, gross, edge *uint256.Int) (Quote, error) {
	grossDec := toDecimal(gross)
	fee := grossDec.Mul(c.params.FeeRate).Floor()

	var net decimal.Decimal
	if side == SideBuy {
		net = grossDec.Add(fee)
		if net.GreaterThan(maxAmountDec) {
			return Quote{}, ErrArithmeticOverflow
		}
	} else {
		net = grossDec.Sub(fee)
	}

	capAfter, err := c.marketCap(newSupply)
	if err != nil {
		return Quote{}, err
	}
	impact, err := c.PriceImpact(supply, amount, side == SideBuy)
	if err != nil {
		return Quote{}, err
	}

	perUnit, _ := grossDec.QuoRem(decimal.NewFromInt(LamportsPerSOL).Mul(fromUint64(amount)), DisplayScale)

	return Quote{
		Side:               side,
		Supply:             supply,
		Amount:             amount,
		UnitPriceAtEdge:    toDecimal(edge),
		GrossAmount:        grossDec,
		Fee:                fee,
		NetAmount:          net,
		PricePerUnit:       perUnit,
		ResultingMarketCap: toDecimal(capAfter),
		PriceImpact:        impact,
	}, nil
}

func (c *Curve) price(supply uint64) (*uint256.Int, error) {
	pow, err := powFixed(c.pows, supply)
	if err != nil {
		return nil, err
	}
	return c.priceAt(pow)
}

// priceAt is max(MinPrice, floor(BasePrice * pow)).
func (c *Curve) priceAt(pow *uint256.Int) (*uint256.Int, error) {
	p, err := scale(c.base, pow)
	if err != nil {
		return nil, err
	}
	if p.Lt(c.minPrice) {
		return new(uint256.Int).Set(c.minPrice), nil
	}
	return p, nil
}

func (c *Curve) marketCap(supply uint64) (*uint256.Int, error) {
	p, err := c.price(supply)
	if err != nil {
		return nil, err
	}
	return mulAmount(p, supply)
}

// sumRange returns Σ price(s) for s in [from, from+n).
//
// Supplies are visited in ascending order on the binary trie of their bits,
// most significant first. Each leaf's power is the same product powFixed
// forms for that supply, so the sum equals the per-unit prices added one by
// one, while a prefix shared by neighbouring supplies is multiplied once.
func (c *Curve) sumRange(from, n uint64) (*uint256.Int, error) {
	w := rangeWalk{c: c, from: from, last: from + n - 1, total: new(uint256.Int)}
	if n == 0 {
		return w.total, nil
	}
	if err := w.visit(63, 0, fixedOne); err != nil {
		return nil, err
	}
	return w.total, nil
}

type rangeWalk struct {
	c          *Curve
	from, last uint64
	total      *uint256.Int
}

// visit adds price(s) for every s in [from, last] that agrees with prefix
// above bit j. pow is Multiplier raised to prefix.
func (w *rangeWalk) visit(j int, prefix uint64, pow *uint256.Int) error {
	// For j == 63 the shift is 64 and span wraps to all ones.
	span := uint64(1)<<uint(j+1) - 1
	if prefix|span < w.from || prefix > w.last {
		return nil
	}
	if j < 0 {
		p, err := w.c.priceAt(pow)
		if err != nil {
			return err
		}
		w.total, err = addAmount(w.total, p)
		return err
	}

	if err := w.visit(j-1, prefix, pow); err != nil {
		return err
	}
	high := prefix | uint64(1)<<uint(j)
	if high > w.last {
		return nil
	}
	if j >= len(w.c.pows) {
		return ErrArithmeticOverflow
	}
	next, err := mulFixed(pow, w.c.pows[j])
	if err != nil {
		return err
	}
	return w.visit(j-1, high, next)
}
