package token

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseHandle_Valid(t *testing.T) {
	tests := map[string]string{
		"alice":                            "alice",
		"  Bob_42 ":                        "bob_42",
		"x":                                "x",
		"abcdefghijklmnopqrstuvwxyz012345": "abcdefghijklmnopqrstuvwxyz012345",
	}
	for in, want := range tests {
		got, err := ParseHandle(in)
		if err != nil {
			t.Errorf("ParseHandle(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseHandle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseHandle_Invalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"has space",
		"dash-ed",
		"émile",
		"abcdefghijklmnopqrstuvwxyz0123456", // 33 chars
	}
	for _, in := range tests {
		_, err := ParseHandle(in)
		if !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("ParseHandle(%q): expected ErrInvalidHandle, got %v", in, err)
		}
	}
}

func TestSymbol_RoundTrip(t *testing.T) {
	sym := Symbol("alice_42")
	if sym != "KEY-ALICE_42" {
		t.Fatalf("expected KEY-ALICE_42, got %s", sym)
	}
	handle, err := ParseSymbol(sym)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "alice_42" {
		t.Errorf("expected alice_42, got %s", handle)
	}
}

func TestParseSymbol_Invalid(t *testing.T) {
	tests := []string{
		"",
		"KEY-",
		"key-alice",
		"ALICE",
		"KEY-ALICE-2",
		"TKN-ALICE",
	}
	for _, sym := range tests {
		_, err := ParseSymbol(sym)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("ParseSymbol(%q): expected ErrInvalidSymbol, got %v", sym, err)
		}
	}
}

// priceAt prices maxSupply on a curve with the given multiplier.
func priceAt(t *testing.T, base, multiplier decimal.Decimal, maxSupply uint64) (decimal.Decimal, error) {
	t.Helper()
	c, err := curve.New(curve.Parameters{
		BasePrice:  base,
		Multiplier: multiplier,
		MaxSupply:  maxSupply,
		FeeRate:    decimal.Zero,
		MinPrice:   decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("curve.New: %v", err)
	}
	return c.Price(maxSupply)
}

func TestDeriveMultiplier_SingleStep(t *testing.T) {
	r, err := DeriveMultiplier(d("1000000"), d("1100000"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// floor(1e6 * 1.100000999) = 1_100_000; one more nano reaches 1_100_001.
	if !r.Equal(d("1.100000999")) {
		t.Errorf("expected 1.100000999, got %s", r)
	}
}

func TestDeriveMultiplier_IsLargestFit(t *testing.T) {
	nano := decimal.New(1, -curve.MultiplierPrecision)
	tests := []struct {
		base, target string
		maxSupply    uint64
	}{
		{"1000000", "2593742", 10},
		{"1000000", "1000000000", 1000},
		{"1000", "50000", 100_000},
		{"100000", "100000000000", 1_000_000},
	}
	for _, tt := range tests {
		base, target := d(tt.base), d(tt.target)
		r, err := DeriveMultiplier(base, target, tt.maxSupply)
		if err != nil {
			t.Fatalf("DeriveMultiplier(%s, %s, %d): %v", tt.base, tt.target, tt.maxSupply, err)
		}

		p, err := priceAt(t, base, r, tt.maxSupply)
		if err != nil || p.GreaterThan(target) {
			t.Errorf("r=%s: price %s (err %v) exceeds target %s", r, p, err, target)
		}
		next, err := priceAt(t, base, r.Add(nano), tt.maxSupply)
		if err == nil && next.LessThanOrEqual(target) {
			t.Errorf("r=%s is not the largest fit: r+1e-9 prices at %s <= %s", r, next, target)
		}
	}
}

func TestDeriveMultiplier_MinimumMultiplier(t *testing.T) {
	// Even the flattest curve overshoots a target equal to the base price
	// over a long supply range.
	r, err := DeriveMultiplier(d("1000000000"), d("1000000000"), 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Equal(d("1.000000001")) {
		t.Errorf("expected 1.000000001, got %s", r)
	}
}

func TestDeriveMultiplier_InvalidInput(t *testing.T) {
	tests := []struct {
		base, target string
		maxSupply    uint64
	}{
		{"0", "100", 10},
		{"10.5", "100", 10},
		{"100", "99", 10},
		{"100", "1000", 0},
	}
	for _, tt := range tests {
		_, err := DeriveMultiplier(d(tt.base), d(tt.target), tt.maxSupply)
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("DeriveMultiplier(%s, %s, %d): expected ErrInvalidTarget, got %v",
				tt.base, tt.target, tt.maxSupply, err)
		}
	}
}
