// Package ledger implements the marketplace settlement core: the
// listing/purchase state machine, fee accounting, and the custody
// protocol it enforces on the token registry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

// Config fixes the ledger's identities and fee schedule. All fields are
// immutable after New.
type Config struct {
	// FeeAccount receives the protocol's cut of every sale. Bound to
	// the operating identity at construction.
	FeeAccount common.Address

	// FeePercent is the integer percentage added on top of each price.
	FeePercent int64

	// Custody is the marketplace's own account. Listed tokens are held
	// here between listing and sale.
	Custody common.Address
}

// Ledger owns the listing collection and the settlement protocol.
// Every state-mutating operation runs to completion under a single
// mutex: no two operations interleave and no caller ever observes a
// half-applied purchase or listing.
type Ledger struct {
	mu sync.Mutex

	cfg      Config
	registry domain.TokenRegistry
	bank     domain.BalanceBook
	store    domain.ListingStore
	bus      domain.EventBus // optional
	logger   *slog.Logger
	now      func() time.Time
}

// New validates the configuration and constructs a Ledger. The event
// bus may be nil, in which case events are not published.
func New(cfg Config, registry domain.TokenRegistry, bank domain.BalanceBook, store domain.ListingStore, bus domain.EventBus, logger *slog.Logger) (*Ledger, error) {
	if cfg.FeePercent < 0 {
		return nil, fmt.Errorf("ledger: fee percent must not be negative, got %d", cfg.FeePercent)
	}
	if cfg.FeeAccount == (common.Address{}) {
		return nil, errors.New("ledger: fee account must be set")
	}
	if cfg.Custody == (common.Address{}) {
		return nil, errors.New("ledger: custody account must be set")
	}
	if registry == nil || bank == nil || store == nil {
		return nil, errors.New("ledger: registry, bank, and store are required")
	}

	return &Ledger{
		cfg:      cfg,
		registry: registry,
		bank:     bank,
		store:    store,
		bus:      bus,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}, nil
}

// FeeAccount returns the account receiving the protocol fee.
func (l *Ledger) FeeAccount() common.Address { return l.cfg.FeeAccount }

// FeePercent returns the integer fee percentage.
func (l *Ledger) FeePercent() int64 { return l.cfg.FeePercent }

// Custody returns the marketplace's custodial account.
func (l *Ledger) Custody() common.Address { return l.cfg.Custody }

// ListItem records a new listing and pulls the token into marketplace
// custody. The caller must be the current owner and must have approved
// the custody account as an operator on the registry beforehand; a
// missing approval surfaces as the registry's transfer error.
func (l *Ledger) ListItem(ctx context.Context, tokenContract common.Address, tokenID uint64, price *big.Int, seller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price == nil || price.Sign() <= 0 {
		return 0, domain.ErrInvalidPrice
	}
	if tokenID == 0 {
		return 0, domain.ErrInvalidTokenID
	}
	if tokenContract == (common.Address{}) {
		return 0, domain.ErrInvalidTokenContract
	}

	owner, err := l.registry.OwnerOf(ctx, tokenContract, tokenID)
	if err != nil {
		return 0, fmt.Errorf("ledger: query token owner: %w", err)
	}
	if owner != seller {
		return 0, domain.ErrNotTokenOwner
	}

	id, err := l.store.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: allocate listing id: %w", err)
	}

	// Pull custody first. The registry enforces the operator approval;
	// its failure aborts before the id is consumed.
	if err := l.registry.TransferFrom(ctx, tokenContract, l.cfg.Custody, seller, l.cfg.Custody, tokenID); err != nil {
		return 0, fmt.Errorf("ledger: pull token into custody: %w", err)
	}

	listing := domain.Listing{
		ID:            id,
		TokenContract: tokenContract,
		TokenID:       tokenID,
		Price:         new(big.Int).Set(price),
		Seller:        seller,
		Sold:          false,
		CreatedAt:     l.now().UTC(),
	}

	if err := l.store.Create(ctx, listing); err != nil {
		// Hand the token back so a persistence failure leaves no
		// trace: no listing, no consumed id, no custody change.
		if rbErr := l.registry.TransferFrom(ctx, tokenContract, l.cfg.Custody, l.cfg.Custody, seller, tokenID); rbErr != nil {
			l.logger.ErrorContext(ctx, "custody rollback failed after store error",
				slog.Uint64("token_id", tokenID),
				slog.String("error", rbErr.Error()),
			)
		}
		return 0, fmt.Errorf("ledger: record listing: %w", err)
	}

	l.emitListed(ctx, listing)

	l.logger.InfoContext(ctx, "listing created",
		slog.Uint64("listing_id", id),
		slog.String("token_contract", tokenContract.Hex()),
		slog.Uint64("token_id", tokenID),
		slog.String("price", price.String()),
		slog.String("seller", seller.Hex()),
	)
	return id, nil
}

// TotalListingPrice returns the exact amount a buyer must remit for the
// listing, sold or unsold.
func (l *Ledger) TotalListingPrice(ctx context.Context, id uint64) (*big.Int, error) {
	listing, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return TotalPrice(listing.Price, l.cfg.FeePercent), nil
}

// ListingItems returns the full listing record.
func (l *Ledger) ListingItems(ctx context.Context, id uint64) (domain.Listing, error) {
	return l.store.Get(ctx, id)
}

// Listings returns listing history, newest first.
func (l *Ledger) Listings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	return l.store.List(ctx, opts)
}

// BuyItem settles a listing: it validates the remitted value, splits it
// between seller and fee account, hands the token to the buyer, and
// marks the listing sold. Either every effect commits or none does;
// any transfer failure triggers compensating transfers for the steps
// already applied.
func (l *Ledger) BuyItem(ctx context.Context, id uint64, remitted *big.Int, buyer common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	listing, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if listing.Sold {
		return domain.ErrItemAlreadySold
	}
	if buyer == listing.Seller {
		return domain.ErrCannotBuyOwnItem
	}

	total := TotalPrice(listing.Price, l.cfg.FeePercent)
	if remitted == nil || remitted.Cmp(total) != 0 {
		return domain.ErrIncorrectPayment
	}

	sellerShare := new(big.Int).Set(listing.Price)
	feeShare := new(big.Int).Sub(total, listing.Price)

	// Pay the seller. A buyer without funds propagates as-is; a seller
	// unable to receive is an isolated payout error so it cannot be
	// mistaken for anything else.
	if err := l.bank.Transfer(ctx, buyer, listing.Seller, sellerShare); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInvalidAmount) {
			return fmt.Errorf("ledger: debit buyer: %w", err)
		}
		return fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
	}

	// Route the fee.
	if err := l.bank.Transfer(ctx, buyer, l.cfg.FeeAccount, feeShare); err != nil {
		l.compensate(ctx, "refund seller share", func() error {
			return l.bank.Transfer(ctx, listing.Seller, buyer, sellerShare)
		})
		return fmt.Errorf("ledger: route fee: %w", err)
	}

	// Hand custody to the buyer.
	if err := l.registry.TransferFrom(ctx, listing.TokenContract, l.cfg.Custody, l.cfg.Custody, buyer, listing.TokenID); err != nil {
		l.compensate(ctx, "refund fee share", func() error {
			return l.bank.Transfer(ctx, l.cfg.FeeAccount, buyer, feeShare)
		})
		l.compensate(ctx, "refund seller share", func() error {
			return l.bank.Transfer(ctx, listing.Seller, buyer, sellerShare)
		})
		return fmt.Errorf("ledger: transfer token to buyer: %w", err)
	}

	soldAt := l.now().UTC()
	if err := l.store.MarkSold(ctx, id, soldAt); err != nil {
		l.compensate(ctx, "return token to custody", func() error {
			return l.registry.TransferFrom(ctx, listing.TokenContract, l.cfg.Custody, buyer, l.cfg.Custody, listing.TokenID)
		})
		l.compensate(ctx, "refund fee share", func() error {
			return l.bank.Transfer(ctx, l.cfg.FeeAccount, buyer, feeShare)
		})
		l.compensate(ctx, "refund seller share", func() error {
			return l.bank.Transfer(ctx, listing.Seller, buyer, sellerShare)
		})
		return fmt.Errorf("ledger: mark listing sold: %w", err)
	}

	l.emitBought(ctx, listing, buyer, soldAt)

	l.logger.InfoContext(ctx, "listing settled",
		slog.Uint64("listing_id", id),
		slog.String("buyer", buyer.Hex()),
		slog.String("seller", listing.Seller.Hex()),
		slog.String("price", listing.Price.String()),
		slog.String("fee", feeShare.String()),
	)
	return nil
}

// compensate applies a rollback step and logs loudly when even the
// rollback fails, since that leaves shared state inconsistent.
func (l *Ledger) compensate(ctx context.Context, step string, fn func() error) {
	if err := fn(); err != nil {
		l.logger.ErrorContext(ctx, "settlement rollback step failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) emitListed(ctx context.Context, listing domain.Listing) {
	if l.bus == nil {
		return
	}
	event, err := domain.NewListedEvent(domain.ListedEvent{
		ListingID:     listing.ID,
		TokenContract: listing.TokenContract,
		TokenID:       listing.TokenID,
		Price:         listing.Price,
		Seller:        listing.Seller,
	}, listing.CreatedAt)
	if err == nil {
		err = l.bus.PublishEvent(ctx, event)
	}
	if err != nil {
		l.logger.WarnContext(ctx, "publish listed event failed",
			slog.Uint64("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) emitBought(ctx context.Context, listing domain.Listing, buyer common.Address, at time.Time) {
	if l.bus == nil {
		return
	}
	event, err := domain.NewBoughtEvent(domain.BoughtEvent{
		ListingID:     listing.ID,
		TokenContract: listing.TokenContract,
		TokenID:       listing.TokenID,
		Price:         listing.Price,
		Seller:        listing.Seller,
		Buyer:         buyer,
	}, at)
	if err == nil {
		err = l.bus.PublishEvent(ctx, event)
	}
	if err != nil {
		l.logger.WarnContext(ctx, "publish bought event failed",
			slog.Uint64("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
}
