package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
	"github.com/solsocial/curve-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values and token amounts are stored as NUMERIC for exact
// precision; amounts exceed BIGINT once MaxSupply passes 2^63.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS curves (
	id            TEXT PRIMARY KEY,
	creator_id    TEXT NOT NULL,
	handle        TEXT NOT NULL,
	symbol        TEXT NOT NULL UNIQUE,
	base_price    NUMERIC NOT NULL,
	multiplier    NUMERIC NOT NULL,
	max_supply    NUMERIC(20, 0) NOT NULL,
	fee_rate      NUMERIC NOT NULL,
	min_price     NUMERIC NOT NULL,
	supply        NUMERIC(20, 0) NOT NULL DEFAULT 0,
	reserve       NUMERIC NOT NULL DEFAULT 0,
	price         NUMERIC NOT NULL,
	market_cap    NUMERIC NOT NULL DEFAULT 0,
	creator_fees  NUMERIC NOT NULL DEFAULT 0,
	platform_fees NUMERIC NOT NULL DEFAULT 0,
	holder_pool   NUMERIC NOT NULL DEFAULT 0,
	tips_total    NUMERIC NOT NULL DEFAULT 0,
	holders_count BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS curves_creator_idx ON curves (creator_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	curve_id       TEXT NOT NULL REFERENCES curves (id),
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	amount         NUMERIC(20, 0) NOT NULL,
	gross          NUMERIC NOT NULL,
	fee            NUMERIC NOT NULL,
	net            NUMERIC NOT NULL,
	price_per_unit NUMERIC NOT NULL,
	supply_after   NUMERIC(20, 0) NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_curve_idx ON ledger_entries (curve_id, timestamp);
CREATE INDEX IF NOT EXISTS ledger_user_idx ON ledger_entries (user_id, timestamp);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const curveColumns = `id, creator_id, handle, symbol,
	base_price::TEXT, multiplier::TEXT, max_supply::TEXT, fee_rate::TEXT, min_price::TEXT,
	supply::TEXT, reserve::TEXT, price::TEXT, market_cap::TEXT,
	creator_fees::TEXT, platform_fees::TEXT, holder_pool::TEXT, tips_total::TEXT,
	holders_count, created_at`

func (s *PostgresStore) CreateCurve(ctx context.Context, c *model.Curve) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO curves (id, creator_id, handle, symbol,
		                     base_price, multiplier, max_supply, fee_rate, min_price,
		                     supply, reserve, price, market_cap,
		                     creator_fees, platform_fees, holder_pool, tips_total,
		                     holders_count, created_at)
		 VALUES ($1, $2, $3, $4,
		         $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		         $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC,
		         $14::NUMERIC, $15::NUMERIC, $16::NUMERIC, $17::NUMERIC,
		         $18, $19)`,
		c.ID, c.CreatorID, c.Handle, c.Symbol,
		c.Params.BasePrice.String(), c.Params.Multiplier.String(), formatUint(c.Params.MaxSupply),
		c.Params.FeeRate.String(), c.Params.MinPrice.String(),
		formatUint(c.Supply), c.Reserve.String(), c.Price.String(), c.MarketCap.String(),
		c.CreatorFees.String(), c.PlatformFees.String(), c.HolderPool.String(), c.TipsTotal.String(),
		c.HoldersCount, c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: curve for %s", ErrAlreadyExists, c.Symbol)
	}
	return err
}

func (s *PostgresStore) GetCurve(ctx context.Context, id string) (*model.Curve, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+curveColumns+` FROM curves WHERE id = $1`, id)
	c, err := scanCurve(row)
	if err != nil {
		return nil, fmt.Errorf("get curve %s: %w", id, notFound(err))
	}
	return c, nil
}

func (s *PostgresStore) GetCurveBySymbol(ctx context.Context, symbol string) (*model.Curve, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+curveColumns+` FROM curves WHERE symbol = $1`, symbol)
	c, err := scanCurve(row)
	if err != nil {
		return nil, fmt.Errorf("get curve by symbol %s: %w", symbol, notFound(err))
	}
	return c, nil
}

func (s *PostgresStore) ListCurves(ctx context.Context) ([]model.Curve, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+curveColumns+` FROM curves ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curves []model.Curve
	for rows.Next() {
		c, err := scanCurve(rows)
		if err != nil {
			return nil, err
		}
		curves = append(curves, *c)
	}
	return curves, rows.Err()
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) UpdateCurveState(ctx context.Context, id string, st model.CurveState) error {
	return updateCurveState(ctx, s.pool, id, st)
}

// RecordTrade updates the curve and inserts the ledger entry in one
// transaction.
func (s *PostgresStore) RecordTrade(ctx context.Context, curveID string, st model.CurveState, e *model.LedgerEntry) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateCurveState(ctx, tx, curveID, st); err != nil {
		return err
	}
	if err := insertLedgerEntry(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func updateCurveState(ctx context.Context, q execer, id string, st model.CurveState) error {
	tag, err := q.Exec(ctx,
		`UPDATE curves
		 SET supply = $2::NUMERIC, reserve = $3::NUMERIC,
		     price = $4::NUMERIC, market_cap = $5::NUMERIC,
		     creator_fees = $6::NUMERIC, platform_fees = $7::NUMERIC,
		     holder_pool = $8::NUMERIC, tips_total = $9::NUMERIC,
		     holders_count = $10
		 WHERE id = $1`,
		id, formatUint(st.Supply), st.Reserve.String(),
		st.Price.String(), st.MarketCap.String(),
		st.CreatorFees.String(), st.PlatformFees.String(),
		st.HolderPool.String(), st.TipsTotal.String(),
		st.HoldersCount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: curve %s", ErrNotFound, id)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, q execer, e *model.LedgerEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, curve_id, symbol, side, amount,
		                             gross, fee, net, price_per_unit, supply_after, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		e.ID, e.UserID, e.CurveID, e.Symbol, string(e.Side), formatUint(e.Amount),
		e.Gross.String(), e.Fee.String(), e.Net.String(), e.PricePerUnit.String(),
		formatUint(e.SupplyAfter), e.Timestamp,
	)
	return err
}

const ledgerColumns = `id, user_id, curve_id, symbol, side, amount::TEXT,
	gross::TEXT, fee::TEXT, net::TEXT, price_per_unit::TEXT, supply_after::TEXT, timestamp`

func (s *PostgresStore) GetLedgerEntriesByCurve(ctx context.Context, curveID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE curve_id = $1 ORDER BY timestamp`, curveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetHolderBalance(ctx context.Context, userID, curveID string) (uint64, error) {
	var balanceS string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN side = 'BUY' THEN amount ELSE -amount END), 0)::TEXT
		 FROM ledger_entries WHERE user_id = $1 AND curve_id = $2`, userID, curveID).
		Scan(&balanceS)
	if err != nil {
		return 0, err
	}
	return parseUint(balanceS)
}

func (s *PostgresStore) GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT curve_id, symbol, balance::TEXT, cost_basis::TEXT
		 FROM (
			SELECT le.curve_id,
			       c.symbol,
			       SUM(CASE WHEN le.side = 'BUY' THEN le.amount ELSE -le.amount END) AS balance,
			       SUM(CASE WHEN le.side = 'BUY' THEN le.net ELSE -le.net END) AS cost_basis,
			       MIN(le.timestamp) AS first_trade
			FROM ledger_entries le
			JOIN curves c ON c.id = le.curve_id
			WHERE le.user_id = $1
			GROUP BY le.curve_id, c.symbol
		 ) h
		 WHERE balance > 0
		 ORDER BY first_trade`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h := model.Holding{UserID: userID}
		var balanceS, costS string
		if err := rows.Scan(&h.CurveID, &h.Symbol, &balanceS, &costS); err != nil {
			return nil, err
		}
		if h.Balance, err = parseUint(balanceS); err != nil {
			return nil, err
		}
		if h.CostBasis, err = decimal.NewFromString(costS); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCurve(row rowScanner) (*model.Curve, error) {
	var c model.Curve
	var basePrice, multiplier, maxSupply, feeRate, minPrice string
	var supply, reserve, price, marketCap string
	var creatorFees, platformFees, holderPool, tipsTotal string

	if err := row.Scan(&c.ID, &c.CreatorID, &c.Handle, &c.Symbol,
		&basePrice, &multiplier, &maxSupply, &feeRate, &minPrice,
		&supply, &reserve, &price, &marketCap,
		&creatorFees, &platformFees, &holderPool, &tipsTotal,
		&c.HoldersCount, &c.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	p := decimalParser{}
	c.Params = curve.Parameters{
		BasePrice:  p.parse(basePrice),
		Multiplier: p.parse(multiplier),
		FeeRate:    p.parse(feeRate),
		MinPrice:   p.parse(minPrice),
	}
	c.Reserve = p.parse(reserve)
	c.Price = p.parse(price)
	c.MarketCap = p.parse(marketCap)
	c.CreatorFees = p.parse(creatorFees)
	c.PlatformFees = p.parse(platformFees)
	c.HolderPool = p.parse(holderPool)
	c.TipsTotal = p.parse(tipsTotal)
	if p.err != nil {
		return nil, fmt.Errorf("curve %s: %w", c.ID, p.err)
	}
	if c.Params.MaxSupply, err = parseUint(maxSupply); err != nil {
		return nil, err
	}
	if c.Supply, err = parseUint(supply); err != nil {
		return nil, err
	}
	return &c, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var side, amountS, grossS, feeS, netS, perUnitS, supplyAfterS string

		if err := rows.Scan(&e.ID, &e.UserID, &e.CurveID, &e.Symbol, &side, &amountS,
			&grossS, &feeS, &netS, &perUnitS, &supplyAfterS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Side = curve.Side(side)
		p := decimalParser{}
		e.Gross = p.parse(grossS)
		e.Fee = p.parse(feeS)
		e.Net = p.parse(netS)
		e.PricePerUnit = p.parse(perUnitS)
		if p.err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, p.err)
		}

		var err error
		if e.Amount, err = parseUint(amountS); err != nil {
			return nil, err
		}
		if e.SupplyAfter, err = parseUint(supplyAfterS); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// decimalParser keeps the first parse error so a row can be decoded
// without checking every column.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
