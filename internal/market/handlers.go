package market

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
	"github.com/solsocial/curve-engine/internal/limits"
	"github.com/solsocial/curve-engine/internal/revenue"
	"github.com/solsocial/curve-engine/internal/store"
	"github.com/solsocial/curve-engine/internal/token"
)

// Routes registers the market API on r. Mount it under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Route("/curves", func(r chi.Router) {
		r.Post("/", s.HandleCreateCurve)
		r.Get("/", s.HandleListCurves)
		r.Route("/{curveID}", func(r chi.Router) {
			r.Get("/", s.HandleGetCurve)
			r.Get("/price", s.HandleGetPrice)
			r.Get("/quote", s.HandleQuote)
			r.Post("/validate", s.HandleValidate)
			r.Get("/optimal", s.HandleOptimal)
			r.Get("/affordable", s.HandleAffordable)
			r.Get("/apy", s.HandleAPY)
			r.Get("/history", s.HandleHistory)
			r.Post("/tips", s.HandleTip)
			r.Get("/rewards/{userID}", s.HandleRewards)
		})
	})
	r.Get("/slippage", s.HandleSlippage)
	r.Post("/trade", s.HandleTrade)
	r.Get("/portfolio/{userID}", s.HandlePortfolio)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// HandleCreateCurve handles POST /api/v1/curves
func (s *Service) HandleCreateCurve(w http.ResponseWriter, r *http.Request) {
	var req CreateCurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, err := s.CreateCurve(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleListCurves handles GET /api/v1/curves?creator={creatorID}
func (s *Service) HandleListCurves(w http.ResponseWriter, r *http.Request) {
	curves, err := s.ListCurves(r.Context(), r.URL.Query().Get("creator"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curves)
}

// HandleGetCurve handles GET /api/v1/curves/{curveID}
func (s *Service) HandleGetCurve(w http.ResponseWriter, r *http.Request) {
	c, err := s.Curve(r.Context(), chi.URLParam(r, "curveID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleGetPrice handles GET /api/v1/curves/{curveID}/price
func (s *Service) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	c, err := s.Curve(r.Context(), chi.URLParam(r, "curveID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"curve_id":   c.ID,
		"symbol":     c.Symbol,
		"supply":     c.Supply,
		"price":      c.Price,
		"market_cap": c.MarketCap,
		"reserve":    c.Reserve,
	})
}

// HandleQuote handles GET /api/v1/curves/{curveID}/quote?side=BUY&amount=10
func (s *Service) HandleQuote(w http.ResponseWriter, r *http.Request) {
	side, amount, ok := sideAndAmount(w, r)
	if !ok {
		return
	}
	q, err := s.Quote(r.Context(), chi.URLParam(r, "curveID"), side, amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ValidateRequest is the JSON body for POST /curves/{curveID}/validate.
type ValidateRequest struct {
	Side        curve.Side       `json:"side"`
	Amount      uint64           `json:"amount"`
	MaxSlippage *decimal.Decimal `json:"max_slippage,omitempty"`
}

// HandleValidate handles POST /api/v1/curves/{curveID}/validate
// An invalid trade is still a 200; the body carries the reason.
func (s *Service) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != curve.SideBuy && req.Side != curve.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	res, err := s.Validate(r.Context(), chi.URLParam(r, "curveID"), req.Side, req.Amount, req.MaxSlippage)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleOptimal handles GET /api/v1/curves/{curveID}/optimal?side=BUY&max_impact=5
func (s *Service) HandleOptimal(w http.ResponseWriter, r *http.Request) {
	side, ok := parseSide(w, r.URL.Query().Get("side"))
	if !ok {
		return
	}
	maxImpact, err := decimal.NewFromString(r.URL.Query().Get("max_impact"))
	if err != nil {
		writeError(w, "max_impact must be a decimal percentage", http.StatusBadRequest)
		return
	}
	n, err := s.OptimalTradeSize(r.Context(), chi.URLParam(r, "curveID"), side, maxImpact)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"side":       side,
		"max_impact": maxImpact,
		"amount":     n,
	})
}

// HandleAffordable handles GET /api/v1/curves/{curveID}/affordable?budget=5000000
func (s *Service) HandleAffordable(w http.ResponseWriter, r *http.Request) {
	budget, err := decimal.NewFromString(r.URL.Query().Get("budget"))
	if err != nil {
		writeError(w, "budget must be a decimal amount", http.StatusBadRequest)
		return
	}
	n, err := s.Affordable(r.Context(), chi.URLParam(r, "curveID"), budget)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budget": budget, "amount": n})
}

// HandleAPY handles GET /api/v1/curves/{curveID}/apy?daily_volume=1000000&balance=10
func (s *Service) HandleAPY(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	volume, err := decimal.NewFromString(q.Get("daily_volume"))
	if err != nil {
		writeError(w, "daily_volume must be a decimal amount", http.StatusBadRequest)
		return
	}
	balance, err := strconv.ParseUint(q.Get("balance"), 10, 64)
	if err != nil {
		writeError(w, "balance must be a non-negative integer", http.StatusBadRequest)
		return
	}
	apy, err := s.APY(r.Context(), chi.URLParam(r, "curveID"), volume, balance)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apy_percent": apy})
}

// HandleHistory handles GET /api/v1/curves/{curveID}/history
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.History(r.Context(), chi.URLParam(r, "curveID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleTip handles POST /api/v1/curves/{curveID}/tips
func (s *Service) HandleTip(w http.ResponseWriter, r *http.Request) {
	var req TipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := s.Tip(r.Context(), chi.URLParam(r, "curveID"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRewards handles GET /api/v1/curves/{curveID}/rewards/{userID}
func (s *Service) HandleRewards(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, reward, err := s.HolderReward(r.Context(), chi.URLParam(r, "curveID"), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
		"reward":  reward,
	})
}

// HandleSlippage handles GET /api/v1/slippage?expected=100&actual=97
func (s *Service) HandleSlippage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expected, err1 := decimal.NewFromString(q.Get("expected"))
	actual, err2 := decimal.NewFromString(q.Get("actual"))
	if err1 != nil || err2 != nil {
		writeError(w, "expected and actual must be decimal amounts", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slippage_percent": curve.Slippage(expected, actual),
	})
}

// HandleTrade handles POST /api/v1/trade
func (s *Service) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := s.ExecuteTrade(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePortfolio handles GET /api/v1/portfolio/{userID}
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func sideAndAmount(w http.ResponseWriter, r *http.Request) (curve.Side, uint64, bool) {
	side, ok := parseSide(w, r.URL.Query().Get("side"))
	if !ok {
		return "", 0, false
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, "amount must be a non-negative integer", http.StatusBadRequest)
		return "", 0, false
	}
	return side, amount, true
}

func parseSide(w http.ResponseWriter, v string) (curve.Side, bool) {
	switch side := curve.Side(v); side {
	case curve.SideBuy, curve.SideSell:
		return side, true
	default:
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return "", false
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, curve.ErrInvalidAmount),
		errors.Is(err, curve.ErrInvalidParameters),
		errors.Is(err, token.ErrInvalidHandle),
		errors.Is(err, token.ErrInvalidSymbol),
		errors.Is(err, token.ErrInvalidTarget),
		errors.Is(err, revenue.ErrInvalidSharePercentage),
		errors.Is(err, revenue.ErrInvalidTokenSupply),
		errors.Is(err, revenue.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, curve.ErrCapacityExceeded),
		errors.Is(err, curve.ErrInsufficientSupply),
		errors.Is(err, curve.ErrSlippageExceeded),
		errors.Is(err, curve.ErrInsufficientReserve),
		errors.Is(err, curve.ErrStaleQuote),
		errors.Is(err, limits.ErrBelowMinimumTrade),
		errors.Is(err, limits.ErrAboveMaximumTrade),
		errors.Is(err, limits.ErrHoldingLimitExceeded),
		errors.Is(err, limits.ErrInsufficientBalance),
		errors.Is(err, limits.ErrCreatorRetention):
		return http.StatusConflict
	case errors.Is(err, curve.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with the status statusFor assigns. Internal errors
// are logged and hidden from the client.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
