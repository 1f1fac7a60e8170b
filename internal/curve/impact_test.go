package curve

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Price impact and slippage ---

func TestPriceImpact_Buy(t *testing.T) {
	c := newDefault(t)
	impact, err := c.PriceImpact(0, 1, true)
	require.NoError(t, err)
	assert.True(t, impact.Equal(d("10")), "got %s", impact)

	impact, err = c.PriceImpact(0, 2, true)
	require.NoError(t, err)
	assert.True(t, impact.Equal(d("21")), "got %s", impact)
}

func TestPriceImpact_SellIsTruncated(t *testing.T) {
	c := newDefault(t)
	impact, err := c.PriceImpact(1, 1, false)
	require.NoError(t, err)
	// 100_000 / 1_100_000 * 100 = 9.090909...
	assert.True(t, impact.Equal(d("9.0909090909")), "got %s", impact)
}

func TestPriceImpact_CappedAtHundred(t *testing.T) {
	c := newDefault(t)
	impact, err := c.PriceImpact(0, 100, true)
	require.NoError(t, err)
	assert.True(t, impact.Equal(d("100")), "got %s", impact)
}

func TestPriceImpact_NonDecreasingInAmount(t *testing.T) {
	c := newDefault(t)
	prev := decimal.Zero
	for amount := uint64(1); amount <= 60; amount++ {
		impact, err := c.PriceImpact(20, amount, false)
		if amount > 20 {
			assert.ErrorIs(t, err, ErrInsufficientSupply)
			continue
		}
		require.NoError(t, err)
		assert.True(t, impact.GreaterThanOrEqual(prev), "amount %d: %s < %s", amount, impact, prev)
		prev = impact
	}
}

func TestPriceImpact_Bounds(t *testing.T) {
	c := newDefault(t)
	_, err := c.PriceImpact(999_999, 2, true)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = c.PriceImpact(3, 4, false)
	assert.ErrorIs(t, err, ErrInsufficientSupply)
}

func TestSlippage(t *testing.T) {
	tests := []struct {
		expected, actual, want string
	}{
		{"0", "123", "0"},
		{"100", "105", "5"},
		{"100", "95", "5"},
		{"100", "300", "100"},
		{"3", "4", "33.3333333333"},
		{"-100", "-110", "10"},
	}
	for _, tt := range tests {
		got := Slippage(d(tt.expected), d(tt.actual))
		assert.True(t, got.Equal(d(tt.want)), "Slippage(%s, %s) = %s, want %s", tt.expected, tt.actual, got, tt.want)
	}
}

// --- Trade validation ---

func TestValidateTrade(t *testing.T) {
	c := newDefault(t)
	five := d("5")

	tests := []struct {
		name    string
		supply  uint64
		amount  uint64
		isBuy   bool
		max     decimal.Decimal
		wantErr error
	}{
		{"zero amount", 10, 0, true, five, ErrInvalidAmount},
		{"capacity exceeded", 999_999, 2, true, five, ErrCapacityExceeded},
		{"insufficient supply", 3, 4, false, five, ErrInsufficientSupply},
		{"impact above tolerance", 0, 1, true, five, ErrSlippageExceeded},
		{"impact equal to tolerance", 0, 1, true, d("10"), nil},
		{"sell within tolerance", 1, 1, false, d("10"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.ValidateTrade(tt.supply, tt.amount, tt.isBuy, tt.max)
			if tt.wantErr == nil {
				assert.True(t, v.Valid(), "unexpected error: %v", v.Err)
				assert.Empty(t, v.Reason())
				return
			}
			assert.False(t, v.Valid())
			assert.ErrorIs(t, v.Err, tt.wantErr)
		})
	}
}

func TestValidateTrade_SupplyBoundaries(t *testing.T) {
	c := newDefault(t)
	maxSupply := c.params.MaxSupply

	for _, pct := range []string{"0", "5", "100", "1000000"} {
		t.Run(pct, func(t *testing.T) {
			tolerance := d(pct)

			v := c.ValidateTrade(maxSupply, 1, true, tolerance)
			assert.ErrorIs(t, v.Err, ErrCapacityExceeded, "buy at max supply")
			assert.Equal(t, "capacity_exceeded", v.Reason())

			v = c.ValidateTrade(0, 1, false, tolerance)
			assert.ErrorIs(t, v.Err, ErrInsufficientSupply, "sell at zero supply")
			assert.Equal(t, "insufficient_supply", v.Reason())
		})
	}
}

func TestValidateTrade_SlippageMessageCarriesImpact(t *testing.T) {
	c := newDefault(t)
	v := c.ValidateTrade(0, 1, true, d("5"))
	require.False(t, v.Valid())
	assert.True(t, v.Impact.Equal(d("10")))
	assert.Contains(t, v.Err.Error(), "10%")
	assert.Equal(t, "slippage_exceeded", v.Reason())
}

func TestValidateTrade_CapacityCheckedBeforeImpact(t *testing.T) {
	c := newDefault(t)
	// The impact at this supply overflows; the capacity error must win.
	v := c.ValidateTrade(999_999, 2, true, d("100"))
	assert.ErrorIs(t, v.Err, ErrCapacityExceeded)
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "invalid_amount", Code(ErrInvalidAmount))
	assert.Equal(t, "capacity_exceeded", Code(errors.Join(errors.New("context"), ErrCapacityExceeded)))
	assert.Equal(t, "insufficient_supply", Code(ErrInsufficientSupply))
	assert.Equal(t, "arithmetic_overflow", Code(ErrArithmeticOverflow))
	assert.Equal(t, "unknown", Code(errors.New("boom")))
}

// --- Optimal size ---

func TestOptimalTradeSize_Buy(t *testing.T) {
	c := newDefault(t)
	// 1.1^2 = 1.21 stays within 25%; 1.1^3 = 1.331 does not.
	n, err := c.OptimalTradeSize(0, d("25"), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	n, err = c.OptimalTradeSize(0, d("5"), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestOptimalTradeSize_Sell(t *testing.T) {
	c := newDefault(t)
	// Selling one token moves the price 9.09%, two tokens 17.36%.
	n, err := c.OptimalTradeSize(10, d("10"), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = c.OptimalTradeSize(0, d("50"), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestOptimalTradeSize_IsTight(t *testing.T) {
	c := newDefault(t)
	limit := d("250")
	for _, supply := range []uint64{0, 7, 42} {
		n, err := c.OptimalTradeSize(supply, limit, true)
		require.NoError(t, err)
		require.Positive(t, n)

		impact, err := c.PriceImpact(supply, n, true)
		require.NoError(t, err)
		assert.True(t, impact.LessThanOrEqual(limit))

		next, err := c.PriceImpact(supply, n+1, true)
		if err == nil {
			assert.True(t, next.GreaterThan(limit), "supply %d: n+1=%d still within limit", supply, n+1)
		}
	}
}

func TestOptimalTradeSize_Exhaustive(t *testing.T) {
	c, err := New(Parameters{BasePrice: d("1000"), Multiplier: d("1.01"), MaxSupply: 400, FeeRate: d("0.01"), MinPrice: d("10")})
	require.NoError(t, err)

	limit := d("37.5")
	got, err := c.OptimalTradeSize(100, limit, true)
	require.NoError(t, err)

	var want uint64
	for a := uint64(1); a <= 300; a++ {
		impact, err := c.PriceImpact(100, a, true)
		require.NoError(t, err)
		if impact.LessThanOrEqual(limit) {
			want = a
		}
	}
	assert.Equal(t, want, got)
}

// --- Budget ---

func TestTokensForBudget(t *testing.T) {
	c := newDefault(t)
	tests := []struct {
		budget string
		want   uint64
	}{
		{"1024999", 0},
		{"1025000", 1},
		{"3392749", 2},
		{"3392750", 3},
	}
	for _, tt := range tests {
		n, err := c.TokensForBudget(0, d(tt.budget))
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "budget %s", tt.budget)
	}

	_, err := c.TokensForBudget(0, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// --- APY ---

func TestEstimateAPY_ZeroCases(t *testing.T) {
	c := newDefault(t)
	for _, tc := range []struct {
		volume         string
		supply, balance uint64
	}{
		{"1000000", 0, 0},
		{"1000000", 10, 0},
		{"0", 10, 5},
	} {
		apy, err := c.EstimateAPY(d(tc.volume), tc.supply, tc.balance)
		require.NoError(t, err)
		assert.True(t, apy.IsZero())
	}
}

func TestEstimateAPY_Compounds(t *testing.T) {
	c := newDefault(t)
	// price(10) = 2_593_742, so ten tokens are worth 25_937_420 and a
	// volume of 103_749.68 returns 0.01% per day.
	apy, err := c.EstimateAPY(d("103749.68"), 10, 10)
	require.NoError(t, err)
	assert.InDelta(t, 3.72, apy.InexactFloat64(), 0.01)
}

func TestEstimateAPY_Capped(t *testing.T) {
	c := newDefault(t)
	apy, err := c.EstimateAPY(d("1000000000000"), 10, 1)
	require.NoError(t, err)
	assert.True(t, apy.Equal(decimal.NewFromFloat(MaxAPYPercent)), "got %s", apy)
}

func TestEstimateAPY_BalanceAboveSupply(t *testing.T) {
	c := newDefault(t)
	_, err := c.EstimateAPY(d("100"), 5, 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// --- Fuzz ---

func FuzzQuoteInvariants(f *testing.F) {
	f.Add(uint16(0), uint16(1))
	f.Add(uint16(10), uint16(25))
	f.Add(uint16(300), uint16(200))

	c, err := New(DefaultParameters())
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, supply, amount uint16) {
		if amount == 0 || supply > 300 || amount > 300 {
			t.Skip()
		}
		s, a := uint64(supply), uint64(amount)

		buy, err := c.BuyQuote(s, a)
		if err != nil {
			t.Fatalf("BuyQuote(%d, %d): %v", s, a, err)
		}
		if !buy.NetAmount.Equal(buy.GrossAmount.Add(buy.Fee)) {
			t.Fatalf("buy net %s != gross %s + fee %s", buy.NetAmount, buy.GrossAmount, buy.Fee)
		}

		sell, err := c.SellQuote(s+a, a)
		if err != nil {
			t.Fatalf("SellQuote(%d, %d): %v", s+a, a, err)
		}
		if !sell.GrossAmount.Equal(buy.GrossAmount) {
			t.Fatalf("sell gross %s != buy gross %s", sell.GrossAmount, buy.GrossAmount)
		}
		if sell.NetAmount.IsNegative() || sell.NetAmount.GreaterThan(sell.GrossAmount) {
			t.Fatalf("sell net %s out of range", sell.NetAmount)
		}

		state, err := c.Apply(State{Supply: s, Reserve: decimal.Zero}, buy)
		if err != nil {
			t.Fatalf("Apply(buy): %v", err)
		}
		state, err = c.Apply(state, sell)
		if err != nil {
			t.Fatalf("Apply(sell): %v", err)
		}
		if state.Supply != s || !state.Reserve.IsZero() {
			t.Fatalf("round trip left state %+v", state)
		}
	})
}
