package portfolio

import "errors"

// ErrInsufficientFunds is returned when an operation would drive cash
// negative. Recoverable: the strategy treats it as "skip this entry today".
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInsufficientShares is returned when an operation needs more shares than
// are held. Recoverable, same as ErrInsufficientFunds.
var ErrInsufficientShares = errors.New("insufficient shares")

// ErrInvalidOperation is returned when a ledger operation is invoked on a
// position of the wrong kind or side, e.g. assigning a long position. This is
// a programmer error and must abort the run.
var ErrInvalidOperation = errors.New("invalid operation for position")

// ErrPositionNotFound is returned when closing, expiring, or assigning a
// position the ledger does not hold. Indicates double-processing or a
// corrupted ledger; fatal.
var ErrPositionNotFound = errors.New("position not found")
