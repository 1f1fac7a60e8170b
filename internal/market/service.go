// Package market provides the business logic and HTTP handlers for
// creating creator curves, quoting and executing trades, tipping creators,
// and querying holdings.
//
// All monetary values use shopspring/decimal and are in base units.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
	"github.com/solsocial/curve-engine/internal/limits"
	"github.com/solsocial/curve-engine/internal/metrics"
	"github.com/solsocial/curve-engine/internal/model"
	"github.com/solsocial/curve-engine/internal/revenue"
	"github.com/solsocial/curve-engine/internal/store"
	"github.com/solsocial/curve-engine/internal/token"
)

// ErrInvalidRequest is returned for malformed or incomplete requests.
var ErrInvalidRequest = errors.New("market: invalid request")

// Options configures a Service.
type Options struct {
	// Defaults fills in any curve parameter a creator leaves unset.
	Defaults curve.Parameters

	// FeeShares splits trade fees; TipShares splits tips.
	FeeShares revenue.Shares
	TipShares revenue.Shares

	// DefaultMaxSlippage applies when a trade or validation request does
	// not carry its own tolerance, in percent.
	DefaultMaxSlippage decimal.Decimal
}

// Service handles curve operations. Uses a mutex for serialized trade
// execution (single-instance), so every engine call sees one consistent
// curve snapshot. For horizontal scaling, replace with database-level
// optimistic concurrency on the curve row.
type Service struct {
	store   store.Store
	limiter *limits.TradeLimiter
	opts    Options
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
	now     func() time.Time
}

// NewService creates a new market service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *limits.TradeLimiter, hub *WSHub, opts Options) *Service {
	if opts.DefaultMaxSlippage.IsZero() {
		opts.DefaultMaxSlippage = decimal.NewFromInt(100)
	}
	return &Service{
		store:   st,
		limiter: limiter,
		opts:    opts,
		wsHub:   hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// --- Request/Response types ---

// ParamsRequest overrides curve parameters at creation. Omitted fields
// take the service defaults; an explicit zero is kept and validated.
type ParamsRequest struct {
	BasePrice  *decimal.Decimal `json:"base_price,omitempty"`
	Multiplier *decimal.Decimal `json:"multiplier,omitempty"`
	MaxSupply  *uint64          `json:"max_supply,omitempty"`
	FeeRate    *decimal.Decimal `json:"fee_rate,omitempty"`
	MinPrice   *decimal.Decimal `json:"min_price,omitempty"`

	// TargetPrice, when set and Multiplier is not, derives the multiplier
	// so that the price at MaxSupply does not exceed it.
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
}

// CreateCurveRequest is the JSON body for curve creation.
type CreateCurveRequest struct {
	CreatorID string         `json:"creator_id"`
	Name      string         `json:"name"` // creator handle; becomes KEY-{HANDLE}
	Params    *ParamsRequest `json:"params,omitempty"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	UserID      string           `json:"user_id"`
	CurveID     string           `json:"curve_id"` // curve ID or KEY-{HANDLE} symbol
	Side        curve.Side       `json:"side"`     // "BUY" or "SELL"
	Amount      uint64           `json:"amount"`
	MaxSlippage *decimal.Decimal `json:"max_slippage,omitempty"` // percent; omitted → service default
	ExpectedNet decimal.Decimal  `json:"expected_net"`           // optional; checked against the quote
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	TradeID  string               `json:"trade_id"`
	UserID   string               `json:"user_id"`
	CurveID  string               `json:"curve_id"`
	Symbol   string               `json:"symbol"`
	Quote    curve.Quote          `json:"quote"`
	FeeSplit revenue.Distribution `json:"fee_split"`
	Balance  uint64               `json:"balance"` // trader's balance after the trade
	State    model.CurveState     `json:"state"`
}

// TipRequest is the JSON body for POST /curves/{curveID}/tips.
type TipRequest struct {
	FromUserID string          `json:"from_user_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// TipResponse is returned after a tip is split.
type TipResponse struct {
	CurveID string               `json:"curve_id"`
	Split   revenue.Distribution `json:"split"`
	State   model.CurveState     `json:"state"`
}

// ValidationResult is the outcome of a dry-run trade check.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// --- Curve lifecycle ---

// CreateCurve validates the request, derives parameters and persists a
// new curve at zero supply.
func (s *Service) CreateCurve(ctx context.Context, req CreateCurveRequest) (*model.Curve, error) {
	if req.CreatorID == "" {
		return nil, fmt.Errorf("%w: creator_id is required", ErrInvalidRequest)
	}
	handle, err := token.ParseHandle(req.Name)
	if err != nil {
		return nil, err
	}

	params, err := s.resolveParams(req.Params)
	if err != nil {
		return nil, err
	}
	eng, err := curve.New(params)
	if err != nil {
		return nil, err
	}
	price, err := eng.Price(0)
	if err != nil {
		return nil, err
	}

	c := &model.Curve{
		ID:        uuid.New().String(),
		CreatorID: req.CreatorID,
		Handle:    handle,
		Symbol:    token.Symbol(handle),
		Params:    params,
		CurveState: model.CurveState{
			Reserve:      decimal.Zero,
			Price:        price,
			MarketCap:    decimal.Zero,
			CreatorFees:  decimal.Zero,
			PlatformFees: decimal.Zero,
			HolderPool:   decimal.Zero,
			TipsTotal:    decimal.Zero,
		},
		CreatedAt: s.now(),
	}
	if err := s.store.CreateCurve(ctx, c); err != nil {
		return nil, err
	}

	metrics.ActiveCurves.Inc()
	slog.Info("curve created",
		"id", c.ID,
		"symbol", c.Symbol,
		"creator", c.CreatorID,
		"base_price", params.BasePrice.String(),
		"multiplier", params.Multiplier.String(),
		"max_supply", params.MaxSupply,
	)
	s.broadcast(WSMessage{
		Type:    MsgCurveCreated,
		CurveID: c.ID,
		Symbol:  c.Symbol,
		Price:   price.String(),
		Supply:  0,
	})
	return c, nil
}

func (s *Service) resolveParams(req *ParamsRequest) (curve.Parameters, error) {
	p := s.opts.Defaults
	if req == nil {
		return p, nil
	}
	if req.BasePrice != nil {
		p.BasePrice = *req.BasePrice
	}
	if req.MaxSupply != nil {
		p.MaxSupply = *req.MaxSupply
	}
	if req.FeeRate != nil {
		p.FeeRate = *req.FeeRate
	}
	if req.MinPrice != nil {
		p.MinPrice = *req.MinPrice
	}
	switch {
	case req.Multiplier != nil:
		p.Multiplier = *req.Multiplier
	case req.TargetPrice != nil:
		r, err := token.DeriveMultiplier(p.BasePrice, *req.TargetPrice, p.MaxSupply)
		if err != nil {
			return curve.Parameters{}, err
		}
		p.Multiplier = r
	}
	return p, nil
}

// Curve looks a curve up by ID or by KEY-{HANDLE} symbol.
func (s *Service) Curve(ctx context.Context, ref string) (*model.Curve, error) {
	if strings.HasPrefix(ref, token.SymbolPrefix) {
		if _, err := token.ParseSymbol(ref); err != nil {
			return nil, err
		}
		return s.store.GetCurveBySymbol(ctx, ref)
	}
	return s.store.GetCurve(ctx, ref)
}

// ListCurves returns all curves, optionally only those of one creator.
func (s *Service) ListCurves(ctx context.Context, creatorID string) ([]model.Curve, error) {
	curves, err := s.store.ListCurves(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]model.Curve, 0, len(curves))
	for _, c := range curves {
		if creatorID == "" || c.CreatorID == creatorID {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// engine loads a curve together with its pricing engine.
func (s *Service) engine(ctx context.Context, ref string) (*model.Curve, *curve.Curve, error) {
	c, err := s.Curve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	eng, err := curve.New(c.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("curve %s has invalid stored parameters: %w", c.ID, err)
	}
	return c, eng, nil
}

// --- Read-only pricing ---

// Quote prices a prospective trade against the curve's current supply.
func (s *Service) Quote(ctx context.Context, ref string, side curve.Side, amount uint64) (curve.Quote, error) {
	c, eng, err := s.engine(ctx, ref)
	if err != nil {
		return curve.Quote{}, err
	}
	return eng.Quote(c.Supply, amount, side == curve.SideBuy)
}

// Validate runs the engine's trade validation without executing. A nil
// maxSlippage takes the service default.
func (s *Service) Validate(ctx context.Context, ref string, side curve.Side, amount uint64, maxSlippage *decimal.Decimal) (ValidationResult, error) {
	tolerance, err := s.slippageOrDefault(maxSlippage)
	if err != nil {
		return ValidationResult{}, err
	}
	c, eng, err := s.engine(ctx, ref)
	if err != nil {
		return ValidationResult{}, err
	}
	v := eng.ValidateTrade(c.Supply, amount, side == curve.SideBuy, tolerance)
	res := ValidationResult{Valid: v.Valid(), Reason: v.Reason(), PriceImpact: v.Impact}
	if v.Err != nil {
		res.Message = v.Err.Error()
	}
	return res, nil
}

// OptimalTradeSize returns the largest trade within maxImpact percent.
func (s *Service) OptimalTradeSize(ctx context.Context, ref string, side curve.Side, maxImpact decimal.Decimal) (uint64, error) {
	c, eng, err := s.engine(ctx, ref)
	if err != nil {
		return 0, err
	}
	return eng.OptimalTradeSize(c.Supply, maxImpact, side == curve.SideBuy)
}

// Affordable returns how many tokens budget buys at the current supply.
func (s *Service) Affordable(ctx context.Context, ref string, budget decimal.Decimal) (uint64, error) {
	c, eng, err := s.engine(ctx, ref)
	if err != nil {
		return 0, err
	}
	return eng.TokensForBudget(c.Supply, budget)
}

// APY estimates a holder's fee yield for the given daily volume.
func (s *Service) APY(ctx context.Context, ref string, dailyVolume decimal.Decimal, balance uint64) (decimal.Decimal, error) {
	c, eng, err := s.engine(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return eng.EstimateAPY(dailyVolume, c.Supply, balance)
}

// HolderReward returns the user's pro-rata share of the curve's holder pool.
func (s *Service) HolderReward(ctx context.Context, ref, userID string) (balance uint64, reward decimal.Decimal, err error) {
	c, err := s.Curve(ctx, ref)
	if err != nil {
		return 0, decimal.Zero, err
	}
	balance, err = s.store.GetHolderBalance(ctx, userID, c.ID)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if c.Supply == 0 {
		return balance, decimal.Zero, nil
	}
	reward, err = revenue.HolderReward(c.HolderPool, balance, c.Supply)
	return balance, reward, err
}

func (s *Service) slippageOrDefault(v *decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case v == nil:
		return s.opts.DefaultMaxSlippage, nil
	case v.IsNegative():
		return decimal.Zero, fmt.Errorf("%w: max_slippage must not be negative", ErrInvalidRequest)
	default:
		return *v, nil
	}
}

// --- State-changing operations ---

// ExecuteTrade validates, prices and applies a trade, then records it.
// Checks run in order: curve validation (amount, capacity, supply, price
// impact), trader limits, then the caller's expected net amount.
func (s *Service) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if req.Side != curve.SideBuy && req.Side != curve.SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidRequest)
	}
	if req.Amount == 0 {
		return nil, curve.ErrInvalidAmount
	}
	maxSlippage, err := s.slippageOrDefault(req.MaxSlippage)
	if err != nil {
		return nil, err
	}
	isBuy := req.Side == curve.SideBuy
	start := time.Now()

	// Serialize trade execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	c, eng, err := s.engine(ctx, req.CurveID)
	if err != nil {
		return nil, err
	}

	if v := eng.ValidateTrade(c.Supply, req.Amount, isBuy, maxSlippage); !v.Valid() {
		metrics.TradeRejections.WithLabelValues(v.Reason()).Inc()
		return nil, v.Err
	}

	balance, err := s.store.GetHolderBalance(ctx, req.UserID, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if err := s.limiter.CheckTrade(limits.TradeCheck{
		Amount:    req.Amount,
		IsBuy:     isBuy,
		Balance:   balance,
		MaxSupply: c.Params.MaxSupply,
		IsCreator: req.UserID == c.CreatorID,
	}); err != nil {
		metrics.TradeRejections.WithLabelValues("limit").Inc()
		return nil, err
	}

	q, err := eng.Quote(c.Supply, req.Amount, isBuy)
	if err != nil {
		return nil, err
	}
	if req.ExpectedNet.IsPositive() {
		if slip := curve.Slippage(req.ExpectedNet, q.NetAmount); slip.GreaterThan(maxSlippage) {
			metrics.TradeRejections.WithLabelValues("slippage_exceeded").Inc()
			return nil, fmt.Errorf("%w: net %s deviates %s%% from expected %s",
				curve.ErrSlippageExceeded, q.NetAmount, slip, req.ExpectedNet)
		}
	}

	next, err := eng.Apply(c.Snapshot(), q)
	if err != nil {
		return nil, err
	}
	split, err := s.opts.FeeShares.Split(q.Fee)
	if err != nil {
		return nil, err
	}
	price, err := eng.Price(next.Supply)
	if err != nil {
		return nil, err
	}

	state := c.CurveState
	state.Supply = next.Supply
	state.Reserve = next.Reserve
	state.Price = price
	state.MarketCap = q.ResultingMarketCap
	state.CreatorFees = state.CreatorFees.Add(split.Creator)
	state.PlatformFees = state.PlatformFees.Add(split.Platform)
	state.HolderPool = state.HolderPool.Add(split.Holders)

	newBalance := balance + req.Amount
	if !isBuy {
		newBalance = balance - req.Amount
	}
	switch {
	case balance == 0 && newBalance > 0:
		state.HoldersCount++
	case balance > 0 && newBalance == 0:
		state.HoldersCount--
	}

	// Curve state and the immutable ledger entry are written together.
	entry := &model.LedgerEntry{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		CurveID:      c.ID,
		Symbol:       c.Symbol,
		Side:         req.Side,
		Amount:       req.Amount,
		Gross:        q.GrossAmount,
		Fee:          q.Fee,
		Net:          q.NetAmount,
		PricePerUnit: q.PricePerUnit,
		SupplyAfter:  next.Supply,
		Timestamp:    s.now(),
	}
	if err := s.store.RecordTrade(ctx, c.ID, state, entry); err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}

	side := string(req.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeVolume.WithLabelValues(c.Symbol, side).Add(float64(req.Amount))
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	recordSplit("trade_fee", split)

	slog.Info("trade executed",
		"trade_id", entry.ID,
		"user", req.UserID,
		"symbol", c.Symbol,
		"side", side,
		"amount", req.Amount,
		"gross", q.GrossAmount.String(),
		"fee", q.Fee.String(),
		"net", q.NetAmount.String(),
		"supply", next.Supply,
		"price", price.String(),
	)

	// Broadcast price update via WebSocket.
	s.broadcast(WSMessage{
		Type:    MsgTradeExecuted,
		CurveID: c.ID,
		Symbol:  c.Symbol,
		Price:   price.String(),
		Supply:  next.Supply,
		Side:    side,
		Amount:  req.Amount,
		UserID:  req.UserID,
	})

	return &TradeResponse{
		TradeID:  entry.ID,
		UserID:   req.UserID,
		CurveID:  c.ID,
		Symbol:   c.Symbol,
		Quote:    q,
		FeeSplit: split,
		Balance:  newBalance,
		State:    state,
	}, nil
}

// Tip splits a tip between the creator, the platform and the holder pool.
func (s *Service) Tip(ctx context.Context, ref string, req TipRequest) (*TipResponse, error) {
	if req.FromUserID == "" {
		return nil, fmt.Errorf("%w: from_user_id is required", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return nil, fmt.Errorf("%w: tip amount must be a positive integer", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Curve(ctx, ref)
	if err != nil {
		return nil, err
	}
	split, err := s.opts.TipShares.Split(req.Amount)
	if err != nil {
		return nil, err
	}

	state := c.CurveState
	state.CreatorFees = state.CreatorFees.Add(split.Creator)
	state.PlatformFees = state.PlatformFees.Add(split.Platform)
	state.HolderPool = state.HolderPool.Add(split.Holders)
	state.TipsTotal = state.TipsTotal.Add(req.Amount)

	if err := s.store.UpdateCurveState(ctx, c.ID, state); err != nil {
		return nil, fmt.Errorf("update curve state: %w", err)
	}

	recordSplit("tip", split)
	slog.Info("tip received",
		"curve", c.ID,
		"symbol", c.Symbol,
		"from", req.FromUserID,
		"amount", req.Amount.String(),
		"creator", split.Creator.String(),
		"holders", split.Holders.String(),
	)
	s.broadcast(WSMessage{
		Type:    MsgTipReceived,
		CurveID: c.ID,
		Symbol:  c.Symbol,
		UserID:  req.FromUserID,
		Tip:     req.Amount.String(),
	})

	return &TipResponse{CurveID: c.ID, Split: split, State: state}, nil
}

// Portfolio marks every holding to market at the price the user would
// actually receive by selling it now.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	holdings, err := s.store.GetUserHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	p := &model.Portfolio{
		UserID:     userID,
		Holdings:   make([]model.Holding, 0, len(holdings)),
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
		TotalPnL:   decimal.Zero,
	}
	for _, h := range holdings {
		c, eng, err := s.engine(ctx, h.CurveID)
		if err != nil {
			return nil, err
		}
		h.CurrentValue = decimal.Zero
		if h.Balance <= c.Supply {
			if q, err := eng.SellQuote(c.Supply, h.Balance); err == nil {
				h.CurrentValue = q.NetAmount
			}
		}
		h.UnrealizedPnL = h.CurrentValue.Sub(h.CostBasis)

		p.Holdings = append(p.Holdings, h)
		p.TotalValue = p.TotalValue.Add(h.CurrentValue)
		p.TotalCost = p.TotalCost.Add(h.CostBasis)
		p.TotalPnL = p.TotalPnL.Add(h.UnrealizedPnL)
	}
	return p, nil
}

// History returns the curve's trades, oldest first.
func (s *Service) History(ctx context.Context, ref string) ([]model.LedgerEntry, error) {
	c, err := s.Curve(ctx, ref)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetLedgerEntriesByCurve(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

func recordSplit(source string, d revenue.Distribution) {
	metrics.FeesCollected.WithLabelValues(source, "creator").Add(d.Creator.InexactFloat64())
	metrics.FeesCollected.WithLabelValues(source, "platform").Add(d.Platform.InexactFloat64())
	metrics.FeesCollected.WithLabelValues(source, "holders").Add(d.Holders.InexactFloat64())
}
