package limits

import (
	"errors"
	"testing"
)

func TestCheckTrade_WithinLimits(t *testing.T) {
	limiter := NewTradeLimiter(1, 1000, 500)

	err := limiter.CheckTrade(TradeCheck{Amount: 10, IsBuy: true, MaxSupply: 1_000_000})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckTrade_BelowMinimum(t *testing.T) {
	limiter := NewTradeLimiter(5, 1000, 0)

	err := limiter.CheckTrade(TradeCheck{Amount: 4, IsBuy: true, MaxSupply: 1000})
	if !errors.Is(err, ErrBelowMinimumTrade) {
		t.Errorf("expected ErrBelowMinimumTrade, got %v", err)
	}
}

func TestCheckTrade_ZeroMinimumRaisedToOne(t *testing.T) {
	limiter := NewTradeLimiter(0, 0, 0)
	if limiter.MinTrade != 1 {
		t.Fatalf("expected MinTrade=1, got %d", limiter.MinTrade)
	}

	err := limiter.CheckTrade(TradeCheck{Amount: 0, IsBuy: true, MaxSupply: 1000})
	if !errors.Is(err, ErrBelowMinimumTrade) {
		t.Errorf("expected ErrBelowMinimumTrade, got %v", err)
	}
}

func TestCheckTrade_AboveMaximum(t *testing.T) {
	limiter := NewTradeLimiter(1, 100, 0)

	err := limiter.CheckTrade(TradeCheck{Amount: 101, IsBuy: false, Balance: 500})
	if !errors.Is(err, ErrAboveMaximumTrade) {
		t.Errorf("expected ErrAboveMaximumTrade, got %v", err)
	}
}

func TestCheckTrade_NoMaximum(t *testing.T) {
	limiter := NewTradeLimiter(1, 0, 0)

	err := limiter.CheckTrade(TradeCheck{Amount: 1 << 40, IsBuy: true, MaxSupply: 1 << 50})
	if err != nil {
		t.Errorf("expected no error with MaxTrade=0, got %v", err)
	}
}

func TestCheckTrade_HoldingLimit(t *testing.T) {
	// 5% of 1000 = 50 tokens.
	limiter := NewTradeLimiter(1, 0, 500)

	tests := []struct {
		name    string
		balance uint64
		amount  uint64
		wantErr bool
	}{
		{"well below cap", 0, 10, false},
		{"exactly at cap", 40, 10, false},
		{"one above cap", 40, 11, true},
		{"already over cap", 60, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := limiter.CheckTrade(TradeCheck{
				Amount: tt.amount, IsBuy: true, Balance: tt.balance, MaxSupply: 1000,
			})
			if tt.wantErr && !errors.Is(err, ErrHoldingLimitExceeded) {
				t.Errorf("expected ErrHoldingLimitExceeded, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestCheckTrade_CreatorExemptFromHoldingLimit(t *testing.T) {
	limiter := NewTradeLimiter(1, 0, 100)

	err := limiter.CheckTrade(TradeCheck{Amount: 500, IsBuy: true, Balance: 100, MaxSupply: 1000, IsCreator: true})
	if err != nil {
		t.Errorf("expected creator to be exempt, got %v", err)
	}
}

func TestCheckTrade_InsufficientBalance(t *testing.T) {
	limiter := NewTradeLimiter(1, 0, 0)

	err := limiter.CheckTrade(TradeCheck{Amount: 6, IsBuy: false, Balance: 5})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCheckTrade_CreatorRetention(t *testing.T) {
	limiter := NewTradeLimiter(1, 0, 0)

	err := limiter.CheckTrade(TradeCheck{Amount: 5, IsBuy: false, Balance: 5, IsCreator: true})
	if !errors.Is(err, ErrCreatorRetention) {
		t.Errorf("expected ErrCreatorRetention, got %v", err)
	}

	// Selling all but one is fine.
	err = limiter.CheckTrade(TradeCheck{Amount: 4, IsBuy: false, Balance: 5, IsCreator: true})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	// Non-creators may exit fully.
	err = limiter.CheckTrade(TradeCheck{Amount: 5, IsBuy: false, Balance: 5})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestHoldingCap(t *testing.T) {
	limiter := NewTradeLimiter(1, 0, 250)
	got := limiter.HoldingCap(1_000_001)
	// 1_000_001 * 250 / 10_000 = 25_000.025, floored.
	if got.IntPart() != 25_000 {
		t.Errorf("expected 25000, got %s", got)
	}
}
