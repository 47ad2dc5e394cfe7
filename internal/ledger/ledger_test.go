package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/bank"
	"github.com/corvales/nftmarketd/internal/domain"
	"github.com/corvales/nftmarketd/internal/registry"
	"github.com/corvales/nftmarketd/internal/store/memory"
)

var (
	contractAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	custodyAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	feeAddr      = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	sellerAddr   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	buyerAddr    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

// captureBus records published events in order.
type captureBus struct {
	events []domain.Event
}

func (b *captureBus) PublishEvent(ctx context.Context, event domain.Event) error {
	b.events = append(b.events, event)
	return nil
}

type fixture struct {
	ledger *Ledger
	reg    *registry.Registry
	bank   *bank.Bank
	store  *memory.ListingStore
	bus    *captureBus
}

func newFixture(t *testing.T, feePercent int64) *fixture {
	t.Helper()

	reg := registry.New("NFT", "NFT", contractAddr)
	bk := bank.New()
	st := memory.NewListingStore()
	bus := &captureBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led, err := New(Config{
		FeeAccount: feeAddr,
		FeePercent: feePercent,
		Custody:    custodyAddr,
	}, reg, bk, st, bus, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{ledger: led, reg: reg, bank: bk, store: st, bus: bus}
}

// mintApproved mints a token for the seller and approves the custody
// account as operator.
func (f *fixture) mintApproved(t *testing.T, owner common.Address) uint64 {
	t.Helper()
	ctx := context.Background()

	id, err := f.reg.Mint(ctx, owner, fmt.Sprintf("ipfs://token/%d", f.reg.TokenCount()+1))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := f.reg.SetApprovalForAll(ctx, owner, custodyAddr, true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}
	return id
}

func (f *fixture) balance(t *testing.T, account common.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(context.Background(), account)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return bal
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal: " + s)
	}
	return v
}

func TestListItemAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.mintApproved(t, sellerAddr)
	second := f.mintApproved(t, sellerAddr)

	id1, err := f.ledger.ListItem(ctx, contractAddr, first, wei("100"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}
	id2, err := f.ledger.ListItem(ctx, contractAddr, second, wei("200"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}

	if id1 != 1 || id2 != 2 {
		t.Fatalf("expected ids 1,2, got %d,%d", id1, id2)
	}
}

func TestListItemPullsCustody(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, err := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("100"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}

	owner, err := f.reg.OwnerOf(ctx, contractAddr, tokenID)
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if owner != custodyAddr {
		t.Fatalf("token owner = %s, want custody %s", owner.Hex(), custodyAddr.Hex())
	}

	listing, err := f.ledger.ListingItems(ctx, id)
	if err != nil {
		t.Fatalf("ListingItems: %v", err)
	}
	if listing.Sold {
		t.Fatal("fresh listing must not be sold")
	}
	if listing.Seller != sellerAddr {
		t.Fatalf("seller = %s, want %s", listing.Seller.Hex(), sellerAddr.Hex())
	}
	if listing.Price.Cmp(wei("100")) != 0 {
		t.Fatalf("price = %s, want 100", listing.Price)
	}
	if listing.CreatedAt.IsZero() {
		t.Fatal("created_at must be set")
	}
}

func TestListItemValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	tokenID := f.mintApproved(t, sellerAddr)

	tests := []struct {
		name     string
		contract common.Address
		tokenID  uint64
		price    *big.Int
		seller   common.Address
		wantErr  error
	}{
		{"nil price", contractAddr, tokenID, nil, sellerAddr, domain.ErrInvalidPrice},
		{"zero price", contractAddr, tokenID, wei("0"), sellerAddr, domain.ErrInvalidPrice},
		{"negative price", contractAddr, tokenID, big.NewInt(-5), sellerAddr, domain.ErrInvalidPrice},
		{"zero token id", contractAddr, 0, wei("100"), sellerAddr, domain.ErrInvalidTokenID},
		{"zero contract", common.Address{}, tokenID, wei("100"), sellerAddr, domain.ErrInvalidTokenContract},
		{"not the owner", contractAddr, tokenID, wei("100"), buyerAddr, domain.ErrNotTokenOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.ListItem(ctx, tt.contract, tt.tokenID, tt.price, tt.seller)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ListItem error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// None of the rejected attempts may have consumed an id or moved
	// the token.
	if next, _ := f.store.NextID(ctx); next != 1 {
		t.Fatalf("next id = %d, want 1 after rejected listings", next)
	}
	owner, _ := f.reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != sellerAddr {
		t.Fatalf("token owner = %s, want untouched seller", owner.Hex())
	}
}

func TestListItemWithoutApprovalFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	id, err := f.reg.Mint(ctx, sellerAddr, "ipfs://unapproved")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	_, err = f.ledger.ListItem(ctx, contractAddr, id, wei("100"), sellerAddr)
	if !errors.Is(err, domain.ErrTransferNotAuthorized) {
		t.Fatalf("ListItem error = %v, want ErrTransferNotAuthorized", err)
	}

	owner, _ := f.reg.OwnerOf(ctx, contractAddr, id)
	if owner != sellerAddr {
		t.Fatalf("token owner = %s, want seller after failed custody pull", owner.Hex())
	}
	if next, _ := f.store.NextID(ctx); next != 1 {
		t.Fatalf("next id = %d, want 1", next)
	}
}

func TestRelistWhileCustodiedFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	if _, err := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("100"), sellerAddr); err != nil {
		t.Fatalf("ListItem: %v", err)
	}

	// The token now belongs to custody, so the seller is no longer its
	// owner and cannot list it twice.
	_, err := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("150"), sellerAddr)
	if !errors.Is(err, domain.ErrNotTokenOwner) {
		t.Fatalf("second ListItem error = %v, want ErrNotTokenOwner", err)
	}
}

func TestTotalListingPrice(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	// 1 ether at a 1% fee.
	id, err := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000000000000000000"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}

	total, err := f.ledger.TotalListingPrice(ctx, id)
	if err != nil {
		t.Fatalf("TotalListingPrice: %v", err)
	}
	if total.Cmp(wei("1010000000000000000")) != 0 {
		t.Fatalf("total = %s, want 1.01 ether", total)
	}

	if _, err := f.ledger.TotalListingPrice(ctx, 99); !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("unknown id error = %v, want ErrListingNotFound", err)
	}
}

func TestBuyItemSettles(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, err := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}

	total := wei("1010")
	if err := f.bank.Deposit(ctx, buyerAddr, wei("5000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := f.ledger.BuyItem(ctx, id, total, buyerAddr); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}

	if got := f.balance(t, buyerAddr); got.Cmp(wei("3990")) != 0 {
		t.Fatalf("buyer balance = %s, want 3990", got)
	}
	if got := f.balance(t, sellerAddr); got.Cmp(wei("1000")) != 0 {
		t.Fatalf("seller balance = %s, want 1000", got)
	}
	if got := f.balance(t, feeAddr); got.Cmp(wei("10")) != 0 {
		t.Fatalf("fee balance = %s, want 10", got)
	}

	owner, _ := f.reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != buyerAddr {
		t.Fatalf("token owner = %s, want buyer", owner.Hex())
	}

	listing, err := f.ledger.ListingItems(ctx, id)
	if err != nil {
		t.Fatalf("ListingItems: %v", err)
	}
	if !listing.Sold {
		t.Fatal("listing must be sold")
	}
	if listing.SoldAt == nil || listing.SoldAt.IsZero() {
		t.Fatal("sold_at must be stamped")
	}
}

func TestBuyItemTwiceFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, buyerAddr, wei("5000"))

	if err := f.ledger.BuyItem(ctx, id, wei("1010"), buyerAddr); err != nil {
		t.Fatalf("first BuyItem: %v", err)
	}
	if err := f.ledger.BuyItem(ctx, id, wei("1010"), buyerAddr); !errors.Is(err, domain.ErrItemAlreadySold) {
		t.Fatalf("second BuyItem error = %v, want ErrItemAlreadySold", err)
	}
}

func TestBuyItemRejectsWrongPayment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, buyerAddr, wei("5000"))

	for _, remitted := range []*big.Int{nil, wei("1000"), wei("1009"), wei("1011"), wei("2000")} {
		if err := f.ledger.BuyItem(ctx, id, remitted, buyerAddr); !errors.Is(err, domain.ErrIncorrectPayment) {
			t.Fatalf("BuyItem(%v) error = %v, want ErrIncorrectPayment", remitted, err)
		}
	}

	// Nothing may have moved.
	if got := f.balance(t, buyerAddr); got.Cmp(wei("5000")) != 0 {
		t.Fatalf("buyer balance = %s, want untouched 5000", got)
	}
	listing, _ := f.ledger.ListingItems(ctx, id)
	if listing.Sold {
		t.Fatal("listing must remain unsold")
	}
}

func TestBuyItemOwnListingFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, sellerAddr, wei("5000"))

	if err := f.ledger.BuyItem(ctx, id, wei("1010"), sellerAddr); !errors.Is(err, domain.ErrCannotBuyOwnItem) {
		t.Fatalf("BuyItem error = %v, want ErrCannotBuyOwnItem", err)
	}
}

func TestBuyItemUnknownListingFails(t *testing.T) {
	f := newFixture(t, 1)

	err := f.ledger.BuyItem(context.Background(), 42, wei("1010"), buyerAddr)
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("BuyItem error = %v, want ErrListingNotFound", err)
	}
}

func TestBuyItemInsufficientFunds(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, buyerAddr, wei("500"))

	err := f.ledger.BuyItem(ctx, id, wei("1010"), buyerAddr)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("BuyItem error = %v, want ErrInsufficientFunds", err)
	}

	if got := f.balance(t, buyerAddr); got.Cmp(wei("500")) != 0 {
		t.Fatalf("buyer balance = %s, want untouched 500", got)
	}
	listing, _ := f.ledger.ListingItems(ctx, id)
	if listing.Sold {
		t.Fatal("listing must remain unsold")
	}
	owner, _ := f.reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != custodyAddr {
		t.Fatalf("token owner = %s, want custody", owner.Hex())
	}
}

// flakyBank delegates to a real Bank but fails the nth Transfer call
// with a fixed error.
type flakyBank struct {
	*bank.Bank
	failOn int
	err    error
	calls  int
}

func (f *flakyBank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	f.calls++
	if f.calls == f.failOn {
		return f.err
	}
	return f.Bank.Transfer(ctx, from, to, amount)
}

func TestBuyItemPayoutFailure(t *testing.T) {
	reg := registry.New("NFT", "NFT", contractAddr)
	fb := &flakyBank{Bank: bank.New(), failOn: 1, err: errors.New("account frozen")}
	st := memory.NewListingStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led, err := New(Config{FeeAccount: feeAddr, FeePercent: 1, Custody: custodyAddr}, reg, fb, st, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	tokenID, _ := reg.Mint(ctx, sellerAddr, "ipfs://frozen")
	_ = reg.SetApprovalForAll(ctx, sellerAddr, custodyAddr, true)
	id, err := led.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	if err != nil {
		t.Fatalf("ListItem: %v", err)
	}
	_ = fb.Bank.Deposit(ctx, buyerAddr, wei("5000"))

	err = led.BuyItem(ctx, id, wei("1010"), buyerAddr)
	if !errors.Is(err, domain.ErrPayoutFailed) {
		t.Fatalf("BuyItem error = %v, want ErrPayoutFailed", err)
	}

	listing, _ := led.ListingItems(ctx, id)
	if listing.Sold {
		t.Fatal("listing must remain unsold after payout failure")
	}
	owner, _ := reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != custodyAddr {
		t.Fatalf("token owner = %s, want custody", owner.Hex())
	}
}

func TestBuyItemFeeFailureRefundsSeller(t *testing.T) {
	reg := registry.New("NFT", "NFT", contractAddr)
	fb := &flakyBank{Bank: bank.New(), failOn: 2, err: errors.New("fee account frozen")}
	st := memory.NewListingStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led, err := New(Config{FeeAccount: feeAddr, FeePercent: 1, Custody: custodyAddr}, reg, fb, st, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	tokenID, _ := reg.Mint(ctx, sellerAddr, "ipfs://feefail")
	_ = reg.SetApprovalForAll(ctx, sellerAddr, custodyAddr, true)
	id, _ := led.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = fb.Bank.Deposit(ctx, buyerAddr, wei("5000"))

	if err := led.BuyItem(ctx, id, wei("1010"), buyerAddr); err == nil {
		t.Fatal("BuyItem must fail when the fee transfer fails")
	}

	// The seller payment must have been compensated back to the buyer.
	buyerBal, _ := fb.Bank.BalanceOf(ctx, buyerAddr)
	if buyerBal.Cmp(wei("5000")) != 0 {
		t.Fatalf("buyer balance = %s, want restored 5000", buyerBal)
	}
	sellerBal, _ := fb.Bank.BalanceOf(ctx, sellerAddr)
	if sellerBal.Sign() != 0 {
		t.Fatalf("seller balance = %s, want 0", sellerBal)
	}
	listing, _ := led.ListingItems(ctx, id)
	if listing.Sold {
		t.Fatal("listing must remain unsold")
	}
	owner, _ := reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != custodyAddr {
		t.Fatalf("token owner = %s, want custody", owner.Hex())
	}
}

// failingStore delegates to a real store but fails MarkSold.
type failingStore struct {
	domain.ListingStore
	markSoldErr error
}

func (s *failingStore) MarkSold(ctx context.Context, id uint64, at time.Time) error {
	if s.markSoldErr != nil {
		return s.markSoldErr
	}
	return s.ListingStore.MarkSold(ctx, id, at)
}

func TestBuyItemMarkSoldFailureRollsBackEverything(t *testing.T) {
	reg := registry.New("NFT", "NFT", contractAddr)
	bk := bank.New()
	fs := &failingStore{ListingStore: memory.NewListingStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led, err := New(Config{FeeAccount: feeAddr, FeePercent: 1, Custody: custodyAddr}, reg, bk, fs, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	tokenID, _ := reg.Mint(ctx, sellerAddr, "ipfs://marksold")
	_ = reg.SetApprovalForAll(ctx, sellerAddr, custodyAddr, true)
	id, _ := led.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = bk.Deposit(ctx, buyerAddr, wei("5000"))

	fs.markSoldErr = errors.New("disk full")
	if err := led.BuyItem(ctx, id, wei("1010"), buyerAddr); err == nil {
		t.Fatal("BuyItem must fail when MarkSold fails")
	}

	buyerBal, _ := bk.BalanceOf(ctx, buyerAddr)
	if buyerBal.Cmp(wei("5000")) != 0 {
		t.Fatalf("buyer balance = %s, want restored 5000", buyerBal)
	}
	sellerBal, _ := bk.BalanceOf(ctx, sellerAddr)
	if sellerBal.Sign() != 0 {
		t.Fatalf("seller balance = %s, want 0", sellerBal)
	}
	feeBal, _ := bk.BalanceOf(ctx, feeAddr)
	if feeBal.Sign() != 0 {
		t.Fatalf("fee balance = %s, want 0", feeBal)
	}
	owner, _ := reg.OwnerOf(ctx, contractAddr, tokenID)
	if owner != custodyAddr {
		t.Fatalf("token owner = %s, want custody", owner.Hex())
	}

	// With the store healthy again the purchase succeeds.
	fs.markSoldErr = nil
	if err := led.BuyItem(ctx, id, wei("1010"), buyerAddr); err != nil {
		t.Fatalf("retry BuyItem: %v", err)
	}
}

func TestEventsCarrySettlementFields(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, buyerAddr, wei("5000"))
	if err := f.ledger.BuyItem(ctx, id, wei("1010"), buyerAddr); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}

	if len(f.bus.events) != 2 {
		t.Fatalf("published %d events, want 2", len(f.bus.events))
	}
	if f.bus.events[0].Type != domain.EventTypeListed {
		t.Fatalf("first event = %s, want listed", f.bus.events[0].Type)
	}
	if f.bus.events[1].Type != domain.EventTypeBought {
		t.Fatalf("second event = %s, want bought", f.bus.events[1].Type)
	}

	var bought domain.BoughtEvent
	if err := json.Unmarshal(f.bus.events[1].Payload, &bought); err != nil {
		t.Fatalf("unmarshal bought payload: %v", err)
	}
	if bought.ListingID != id || bought.TokenID != tokenID {
		t.Fatalf("bought event ids = (%d,%d), want (%d,%d)", bought.ListingID, bought.TokenID, id, tokenID)
	}
	if bought.Seller != sellerAddr || bought.Buyer != buyerAddr {
		t.Fatal("bought event parties do not match the settlement")
	}
	if bought.Price.Cmp(wei("1000")) != 0 {
		t.Fatalf("bought event price = %s, want 1000", bought.Price)
	}
}

func TestZeroFeeMarket(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tokenID := f.mintApproved(t, sellerAddr)
	id, _ := f.ledger.ListItem(ctx, contractAddr, tokenID, wei("1000"), sellerAddr)
	_ = f.bank.Deposit(ctx, buyerAddr, wei("1000"))

	total, _ := f.ledger.TotalListingPrice(ctx, id)
	if total.Cmp(wei("1000")) != 0 {
		t.Fatalf("total = %s, want 1000 at zero fee", total)
	}
	if err := f.ledger.BuyItem(ctx, id, wei("1000"), buyerAddr); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if got := f.balance(t, feeAddr); got.Sign() != 0 {
		t.Fatalf("fee balance = %s, want 0", got)
	}
}
