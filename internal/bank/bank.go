// Package bank provides an in-memory domain.BalanceBook. It stands in
// for the external value-transfer collaborator in tests and
// single-process deployments.
package bank

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

// Bank keeps wei-scale account balances. All methods are safe for
// concurrent use; each Transfer is atomic.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// New returns an empty Bank.
func New() *Bank {
	return &Bank{balances: make(map[common.Address]*big.Int)}
}

// Deposit credits an account out of thin air. Faucet-style helper for
// bootstrapping demo and test accounts.
func (b *Bank) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.credit(account, amount)
	return nil
}

// BalanceOf implements domain.BalanceBook.
func (b *Bank) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.balances[account]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

// Transfer implements domain.BalanceBook. A failed transfer moves
// nothing.
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}

	bal.Sub(bal, amount)
	b.credit(to, amount)
	return nil
}

// credit adds amount to an account; callers hold b.mu.
func (b *Bank) credit(account common.Address, amount *big.Int) {
	if bal, ok := b.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	b.balances[account] = new(big.Int).Set(amount)
}

// Compile-time interface check.
var _ domain.BalanceBook = (*Bank)(nil)
