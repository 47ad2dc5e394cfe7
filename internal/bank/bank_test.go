package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func TestDepositAndBalance(t *testing.T) {
	b := New()
	ctx := context.Background()

	if bal, _ := b.BalanceOf(ctx, alice); bal.Sign() != 0 {
		t.Fatalf("fresh balance = %s, want 0", bal)
	}

	if err := b.Deposit(ctx, alice, big.NewInt(500)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := b.Deposit(ctx, alice, big.NewInt(250)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	bal, _ := b.BalanceOf(ctx, alice)
	if bal.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("balance = %s, want 750", bal)
	}

	// The returned balance is a copy; mutating it must not leak into
	// the book.
	bal.SetInt64(0)
	again, _ := b.BalanceOf(ctx, alice)
	if again.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("balance after caller mutation = %s, want 750", again)
	}
}

func TestDepositRejectsInvalidAmount(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Deposit(ctx, alice, nil); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Deposit(nil) error = %v, want ErrInvalidAmount", err)
	}
	if err := b.Deposit(ctx, alice, big.NewInt(-1)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Deposit(-1) error = %v, want ErrInvalidAmount", err)
	}
}

func TestTransfer(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Deposit(ctx, alice, big.NewInt(1000))

	if err := b.Transfer(ctx, alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	aliceBal, _ := b.BalanceOf(ctx, alice)
	bobBal, _ := b.BalanceOf(ctx, bob)
	if aliceBal.Cmp(big.NewInt(600)) != 0 || bobBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("balances = %s,%s, want 600,400", aliceBal, bobBal)
	}
}

func TestTransferInsufficientFundsMovesNothing(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Deposit(ctx, alice, big.NewInt(100))

	err := b.Transfer(ctx, alice, bob, big.NewInt(101))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Transfer error = %v, want ErrInsufficientFunds", err)
	}

	aliceBal, _ := b.BalanceOf(ctx, alice)
	bobBal, _ := b.BalanceOf(ctx, bob)
	if aliceBal.Cmp(big.NewInt(100)) != 0 || bobBal.Sign() != 0 {
		t.Fatalf("balances = %s,%s, want untouched 100,0", aliceBal, bobBal)
	}

	// An account that never received funds cannot send.
	if err := b.Transfer(ctx, bob, alice, big.NewInt(1)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Transfer from empty account error = %v, want ErrInsufficientFunds", err)
	}
}

func TestTransferRejectsInvalidAmount(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Deposit(ctx, alice, big.NewInt(100))

	if err := b.Transfer(ctx, alice, bob, nil); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Transfer(nil) error = %v, want ErrInvalidAmount", err)
	}
	if err := b.Transfer(ctx, alice, bob, big.NewInt(-5)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Transfer(-5) error = %v, want ErrInvalidAmount", err)
	}
}
