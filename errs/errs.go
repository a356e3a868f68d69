// Package errs defines the sentinel error taxonomy shared by the engine and
// analyzer packages.
package errs

import "errors"

// ErrInvalidInput marks a programmer/config error: bad arguments supplied to
// a package entry point (non-positive capital, empty bar series, bars fewer
// than the lookback period, a nil required callback).
var ErrInvalidInput = errors.New("invalid input")

// ErrInvariantViolation marks a broken state-machine invariant: a strategy
// callback tried to enter while already in a position, exit while flat, or
// the engine attempted to close a position that was never opened. These are
// programmer errors in the strategy and are always fatal to the backtest.
var ErrInvariantViolation = errors.New("invariant violation")
