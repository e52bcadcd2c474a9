package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"eetc/internal/backtest"
	"eetc/internal/domain"
)

// Compile-time interface check.
var _ backtest.Journal = (*BacktestStore)(nil)

// BacktestStore journals completed backtest runs to a SQLite database so
// results can be compared across time without re-reading artifact files.
type BacktestStore struct {
	db *sql.DB
}

const backtestSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	total_return  REAL NOT NULL,
	annual_return REAL NOT NULL,
	annual_vol    REAL NOT NULL,
	sharpe_ratio  REAL NOT NULL,
	max_drawdown  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	trade_id   TEXT NOT NULL,
	order_id   TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	qty        REAL NOT NULL,
	price      REAL NOT NULL,
	timestamp  TEXT NOT NULL,
	commission REAL NOT NULL,
	fill_cost  REAL NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	timestamp TEXT NOT NULL,
	cash      REAL NOT NULL,
	equity    REAL NOT NULL,
	PRIMARY KEY (run_id, timestamp)
);
`

// NewBacktestStore opens (or creates) a SQLite database at dbPath and
// ensures the schema exists.
func NewBacktestStore(dbPath string) (*BacktestStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(backtestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &BacktestStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *BacktestStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a completed run with its fills and equity curve in one
// transaction. The generated run ID exists only in the database; result
// artifacts stay free of random identifiers.
func (s *BacktestStore) SaveRun(ctx context.Context, res *backtest.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	runID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, symbol, created_at, total_return,
			annual_return, annual_vol, sharpe_ratio, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.StrategyName, res.Symbol, time.Now().UTC().Format(time.RFC3339),
		res.Perf.TotalReturn, res.Perf.AnnualReturn, res.Perf.AnnualVol,
		res.Perf.SharpeRatio, res.Perf.MaxDrawdown,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, f := range res.Fills {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fills (run_id, trade_id, order_id, symbol, side, qty,
				price, timestamp, commission, fill_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, f.TradeID, f.OrderID, f.Symbol, string(f.Side), f.Qty,
			f.Price, f.Timestamp.UTC().Format(time.RFC3339), f.Commission, f.FillCost,
		)
		if err != nil {
			return fmt.Errorf("inserting fill %s: %w", f.TradeID, err)
		}
	}

	for _, p := range res.EquityCurve {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO equity (run_id, timestamp, cash, equity) VALUES (?, ?, ?, ?)`,
			runID, p.Timestamp.UTC().Format(time.RFC3339), p.Cash, p.Equity,
		)
		if err != nil {
			return fmt.Errorf("inserting equity point: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns stored run summaries, newest first. strategy filters by
// strategy name; empty means all strategies.
func (s *BacktestStore) ListRuns(ctx context.Context, strategy string) ([]RunSummary, error) {
	query := `SELECT id, strategy, symbol, created_at, total_return,
		annual_return, annual_vol, sharpe_ratio, max_drawdown FROM runs`
	args := []any{}
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var createdAt string
		if err := rows.Scan(&r.ID, &r.StrategyName, &r.Symbol, &createdAt,
			&r.Perf.TotalReturn, &r.Perf.AnnualReturn, &r.Perf.AnnualVol,
			&r.Perf.SharpeRatio, &r.Perf.MaxDrawdown); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunFills returns the fills of a stored run in trade ID order.
func (s *BacktestStore) GetRunFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_id, order_id, symbol, side, qty, price, timestamp,
			commission, fill_cost
		FROM fills WHERE run_id = ? ORDER BY trade_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, ts string
		if err := rows.Scan(&f.TradeID, &f.OrderID, &f.Symbol, &side, &f.Qty,
			&f.Price, &ts, &f.Commission, &f.FillCost); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		f.Timestamp, _ = time.Parse(time.RFC3339, ts)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// GetRunEquity returns the equity curve of a stored run in chronological
// order.
func (s *BacktestStore) GetRunEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, cash, equity FROM equity
		WHERE run_id = ? ORDER BY timestamp`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying equity: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		var ts string
		if err := rows.Scan(&ts, &p.Cash, &p.Equity); err != nil {
			return nil, fmt.Errorf("scanning equity point: %w", err)
		}
		p.Timestamp, _ = time.Parse(time.RFC3339, ts)
		points = append(points, p)
	}
	return points, rows.Err()
}
