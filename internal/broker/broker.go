// Package broker provides a simulated broker for backtesting. Orders are
// filled against the close of the bar that triggered them, with configurable
// slippage and per-share commission.
package broker

import "errors"

// ErrInvalidOrder marks an order that is malformed or unprocessable: zero or
// negative quantity, an unknown side, or a bar with missing price data. The
// order is skipped and the run continues.
var ErrInvalidOrder = errors.New("invalid order")

// ErrInsufficientFunds marks an order that would violate the cash or
// position non-negativity invariants: a buy that would drive cash below
// zero, or a sell larger than the held position while short selling is
// disabled. The order is skipped and the run continues.
var ErrInsufficientFunds = errors.New("insufficient funds")
