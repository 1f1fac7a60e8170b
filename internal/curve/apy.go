package curve

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// EstimateAPY estimates the annual yield, in percent, a holder earns from
// their pro-rata share of trading fees:
//
//	dailyReturn = (dailyVolume * FeeRate * balance / totalSupply) / (balance * price(totalSupply))
//	apy         = ((1 + dailyReturn)^365 - 1) * 100
//
// The compounding runs in float64 and the result is converted to decimal
// immediately. It is capped at MaxAPYPercent and is zero when either
// totalSupply or userBalance is zero.
func (c *Curve) EstimateAPY(dailyVolume decimal.Decimal, totalSupply, userBalance uint64) (decimal.Decimal, error) {
	if totalSupply == 0 || userBalance == 0 || !dailyVolume.IsPositive() || c.params.FeeRate.IsZero() {
		return decimal.Zero, nil
	}
	if userBalance > totalSupply {
		return decimal.Zero, fmt.Errorf("%w: balance %d exceeds supply %d", ErrInvalidAmount, userBalance, totalSupply)
	}

	price, err := c.Price(totalSupply)
	if err != nil {
		return decimal.Zero, err
	}
	balance := fromUint64(userBalance)
	holding := price.Mul(balance)

	userFees := dailyVolume.Mul(c.params.FeeRate).Mul(balance).Div(fromUint64(totalSupply))
	dailyReturn := userFees.Div(holding).InexactFloat64()

	apy := (math.Pow(1+dailyReturn, 365) - 1) * 100
	if math.IsNaN(apy) || math.IsInf(apy, 0) || apy > MaxAPYPercent {
		apy = MaxAPYPercent
	}
	return decimal.NewFromFloat(apy).Round(2), nil
}
