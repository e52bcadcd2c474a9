// Package store provides persistence for bar data and completed backtest
// runs. Bars live in Parquet files on disk; runs are journaled to SQLite.
package store

import (
	"context"
	"time"

	"eetc/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end], sorted chronologically.
	ReadBars(ctx context.Context, market domain.Market, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// RunSummary is a stored backtest run without its fills and equity curve.
type RunSummary struct {
	ID           string
	StrategyName string
	Symbol       string
	CreatedAt    time.Time
	Perf         domain.PerformanceReport
}
