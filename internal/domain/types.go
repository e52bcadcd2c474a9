// Package domain defines the core types shared across the eetc toolkit:
// bars, orders, fills, positions, and backtest results.
package domain

import "time"

// Market identifies which exchange universe a symbol belongs to.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Bar is a single OHLCV sample for one symbol and time period. Bars are
// immutable once read from storage or an API.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Order is a request to trade, created by a strategy and consumed exactly
// once by the broker simulator. Price is the reference price derived from
// the bar that triggered the order, before slippage.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Qty       float64
	Price     float64
	CreatedAt time.Time
}

// Fill is the executed result of an order after slippage and commission.
// FillCost is the signed cash delta excluding commission (negative for buys).
type Fill struct {
	TradeID    string    `json:"trade_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	Commission float64   `json:"commission"`
	FillCost   float64   `json:"fill_cost"`
}

// Position is the net holding in one symbol. Qty changes by exactly the
// signed quantity of each fill; AvgEntryPrice is the volume-weighted entry
// price of the open long quantity.
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
}

// AccountInfo is a read-only snapshot of simulated account state.
type AccountInfo struct {
	Cash   float64
	Equity float64
}

// EquityPoint is one entry of the equity curve: total account value marked
// to the close of a single bar.
type EquityPoint struct {
	Timestamp time.Time
	Cash      float64
	Equity    float64
}

// PerformanceReport holds summary statistics derived from an equity curve.
// It is computed once at the end of a run and never mutated.
type PerformanceReport struct {
	TotalReturn  float64 `json:"total_return"`
	AnnualReturn float64 `json:"annual_return"`
	AnnualVol    float64 `json:"annual_vol"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}
