// Package funds defines the capability the engine uses to hold and move
// account balances. The funds ledger itself lives outside tickstream; see
// funds/memory and funds/redis for reference implementations.
package funds

import (
	"context"
	"errors"

	"github.com/xraph/tickstream/types"
)

// ErrInsufficientFunds is returned when an account cannot cover a hold or
// transfer.
var ErrInsufficientFunds = errors.New("funds: insufficient funds")

// Ledger is the narrow funds capability. Each call succeeds or fails
// atomically.
type Ledger interface {
	// Reserve moves amount from the account's spendable balance into its
	// held balance.
	Reserve(ctx context.Context, account types.AccountID, amount types.Balance) error
	// Transfer moves amount out of from's held balance into to's spendable
	// balance.
	Transfer(ctx context.Context, from, to types.AccountID, amount types.Balance) error
}

// Compensator is implemented by ledgers that can undo a Reserve or
// Transfer. The engine uses it when a funds operation succeeded but the
// store write that follows it failed.
type Compensator interface {
	Unreserve(ctx context.Context, account types.AccountID, amount types.Balance) error
	Reverse(ctx context.Context, from, to types.AccountID, amount types.Balance) error
}

// Account is a point-in-time view of one account's balances.
type Account struct {
	ID       types.AccountID `json:"id"`
	Free     types.Balance   `json:"free"`
	Reserved types.Balance   `json:"reserved"`
}
