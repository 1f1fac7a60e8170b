package revenue

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplit_FloorsCreatorAndPlatform(t *testing.T) {
	dist, err := Split(d("25000"), d("50"), d("10"))
	require.NoError(t, err)

	assert.True(t, dist.Creator.Equal(d("12500")), "creator %s", dist.Creator)
	assert.True(t, dist.Platform.Equal(d("2500")), "platform %s", dist.Platform)
	assert.True(t, dist.Holders.Equal(d("10000")), "holders %s", dist.Holders)
}

func TestSplit_RemainderGoesToHolders(t *testing.T) {
	dist, err := Split(d("999"), d("33"), d("33"))
	require.NoError(t, err)

	// 999 * 0.33 = 329.67 -> 329 each, leaving 341.
	assert.True(t, dist.Creator.Equal(d("329")))
	assert.True(t, dist.Platform.Equal(d("329")))
	assert.True(t, dist.Holders.Equal(d("341")))
}

func TestSplit_Conserves(t *testing.T) {
	shares := []Shares{
		{CreatorPct: d("50"), PlatformPct: d("10")},
		{CreatorPct: d("12.5"), PlatformPct: d("2.75")},
		{CreatorPct: d("100"), PlatformPct: d("0")},
		{CreatorPct: d("0"), PlatformPct: d("0")},
		{CreatorPct: d("60"), PlatformPct: d("40")},
	}
	totals := []string{"0", "1", "7", "25000", "1234567", "340282366920938463463374607431768211455"}

	for _, s := range shares {
		for _, total := range totals {
			dist, err := s.Split(d(total))
			require.NoError(t, err)
			assert.True(t, dist.Total().Equal(d(total)), "shares %+v total %s: got %s", s, total, dist.Total())
			assert.False(t, dist.Holders.IsNegative())
		}
	}
}

func TestSplit_InvalidShares(t *testing.T) {
	tests := []struct {
		name               string
		creator, platform  string
	}{
		{"creator above 100", "101", "0"},
		{"platform above 100", "0", "100.5"},
		{"negative creator", "-1", "10"},
		{"sum above 100", "60", "41"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(d("1000"), d(tt.creator), d(tt.platform))
			assert.ErrorIs(t, err, ErrInvalidSharePercentage)
		})
	}
}

func TestSplit_NegativeTotal(t *testing.T) {
	_, err := Split(d("-5"), d("10"), d("10"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestHolderReward(t *testing.T) {
	tests := []struct {
		pool            string
		balance, supply uint64
		want            string
	}{
		{"10000", 25, 100, "2500"},
		{"10000", 1, 3, "3333"},
		{"10000", 100, 100, "10000"},
		{"10000", 0, 100, "0"},
		{"7", 2, 3, "4"},
	}
	for _, tt := range tests {
		got, err := HolderReward(d(tt.pool), tt.balance, tt.supply)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(tt.want)), "HolderReward(%s, %d, %d) = %s, want %s",
			tt.pool, tt.balance, tt.supply, got, tt.want)
	}
}

func TestHolderReward_SumNeverExceedsPool(t *testing.T) {
	pool := d("1000003")
	balances := []uint64{1, 2, 3, 5, 8, 13, 21, 34}
	var supply uint64
	for _, b := range balances {
		supply += b
	}

	paid := decimal.Zero
	for _, b := range balances {
		r, err := HolderReward(pool, b, supply)
		require.NoError(t, err)
		paid = paid.Add(r)
	}
	assert.True(t, paid.LessThanOrEqual(pool), "paid %s > pool %s", paid, pool)
}

func TestHolderReward_Errors(t *testing.T) {
	_, err := HolderReward(d("100"), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTokenSupply)

	_, err = HolderReward(d("100"), 5, 4)
	assert.ErrorIs(t, err, ErrInvalidTokenSupply)

	_, err = HolderReward(d("-1"), 1, 4)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
