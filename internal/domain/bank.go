package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceBook is the value-transfer capability the ledger settles
// against. Each Transfer is atomic on its own; the ledger composes
// transfers and issues compensating ones when a later step fails.
type BalanceBook interface {
	// BalanceOf returns the current balance of an account. Accounts
	// that never received funds report zero.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	// Transfer moves amount from one account to another. It fails with
	// ErrInsufficientFunds when the source balance is too small and
	// with ErrInvalidAmount for nil or negative amounts. A failed
	// transfer moves nothing.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}
