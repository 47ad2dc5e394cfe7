package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvales/nftmarketd/internal/domain"
)

// AccountStore implements domain.BalanceBook over PostgreSQL. Each
// transfer runs in a single transaction with row locks, so a failed
// transfer moves nothing.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// BalanceOf implements domain.BalanceBook.
func (s *AccountStore) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var balanceStr string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE address = $1`,
		account.Hex(),
	).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: balance of %s: %w", account.Hex(), err)
	}

	balance, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed balance %q", balanceStr)
	}
	return balance, nil
}

// Deposit credits an account, creating the row if needed.
func (s *AccountStore) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (address, balance) VALUES ($1, $2::NUMERIC)
		ON CONFLICT (address)
		DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		account.Hex(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account.Hex(), err)
	}
	return nil
}

// Transfer implements domain.BalanceBook.
func (s *AccountStore) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceStr string
	err = tx.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE address = $1 FOR UPDATE`,
		from.Hex(),
	).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInsufficientFunds
		}
		return fmt.Errorf("postgres: lock source account: %w", err)
	}

	balance, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return fmt.Errorf("postgres: malformed balance %q", balanceStr)
	}
	if balance.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC, updated_at = NOW() WHERE address = $1`,
		from.Hex(), amount.String(),
	); err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from.Hex(), err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (address, balance) VALUES ($1, $2::NUMERIC)
		ON CONFLICT (address)
		DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		to.Hex(), amount.String(),
	); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to.Hex(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceBook = (*AccountStore)(nil)
