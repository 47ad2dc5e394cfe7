package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

var (
	contractAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	sellerAddr   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func listing(id, tokenID uint64, createdAt time.Time) domain.Listing {
	return domain.Listing{
		ID:            id,
		TokenContract: contractAddr,
		TokenID:       tokenID,
		Price:         big.NewInt(int64(id) * 100),
		Seller:        sellerAddr,
		CreatedAt:     createdAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Create(ctx, listing(1, 10, now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TokenID != 10 || got.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("Get returned %+v", got)
	}

	// Mutating the returned copy must not touch the stored record.
	got.Price.SetInt64(0)
	again, _ := s.Get(ctx, 1)
	if again.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored price mutated through returned copy: %s", again.Price)
	}

	if _, err := s.Get(ctx, 2); !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("Get(2) error = %v, want ErrListingNotFound", err)
	}
}

func TestNextIDIsDense(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if next, _ := s.NextID(ctx); next != 1 {
		t.Fatalf("NextID on empty store = %d, want 1", next)
	}

	_ = s.Create(ctx, listing(1, 10, now))
	_ = s.Create(ctx, listing(2, 11, now))

	if next, _ := s.NextID(ctx); next != 3 {
		t.Fatalf("NextID = %d, want 3", next)
	}
}

func TestMarkSold(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = s.Create(ctx, listing(1, 10, now))

	soldAt := now.Add(time.Minute)
	if err := s.MarkSold(ctx, 1, soldAt); err != nil {
		t.Fatalf("MarkSold: %v", err)
	}

	got, _ := s.Get(ctx, 1)
	if !got.Sold {
		t.Fatal("listing must be sold")
	}
	if got.SoldAt == nil || !got.SoldAt.Equal(soldAt) {
		t.Fatalf("SoldAt = %v, want %v", got.SoldAt, soldAt)
	}

	if err := s.MarkSold(ctx, 9, soldAt); !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("MarkSold(9) error = %v, want ErrListingNotFound", err)
	}
}

func TestListOrderingAndPagination(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for id := uint64(1); id <= 5; id++ {
		_ = s.Create(ctx, listing(id, id+10, now))
	}

	all, err := s.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i, l := range all {
		if want := uint64(5 - i); l.ID != want {
			t.Fatalf("position %d has id %d, want %d (newest first)", i, l.ID, want)
		}
	}

	page, _ := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != 4 || page[1].ID != 3 {
		t.Fatalf("page = %+v, want ids 4,3", page)
	}

	empty, _ := s.List(ctx, domain.ListOpts{Offset: 10})
	if len(empty) != 0 {
		t.Fatalf("offset past end returned %d rows", len(empty))
	}
}

func TestListSoldOnlyWithSince(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for id := uint64(1); id <= 3; id++ {
		_ = s.Create(ctx, listing(id, id+10, base))
	}
	_ = s.MarkSold(ctx, 1, base.Add(10*time.Minute))
	_ = s.MarkSold(ctx, 3, base.Add(30*time.Minute))

	sold, _ := s.List(ctx, domain.ListOpts{SoldOnly: true})
	if len(sold) != 2 {
		t.Fatalf("sold count = %d, want 2", len(sold))
	}

	// Since filters on sale time for sold-only queries.
	cutoff := base.Add(20 * time.Minute)
	recent, _ := s.List(ctx, domain.ListOpts{SoldOnly: true, Since: &cutoff})
	if len(recent) != 1 || recent[0].ID != 3 {
		t.Fatalf("recent = %+v, want only id 3", recent)
	}
}

func TestActiveByToken(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.Create(ctx, listing(1, 10, now))
	_ = s.Create(ctx, listing(2, 11, now))

	got, err := s.ActiveByToken(ctx, contractAddr, 11)
	if err != nil {
		t.Fatalf("ActiveByToken: %v", err)
	}
	if got.ID != 2 {
		t.Fatalf("ActiveByToken id = %d, want 2", got.ID)
	}

	_ = s.MarkSold(ctx, 2, now)
	if _, err := s.ActiveByToken(ctx, contractAddr, 11); !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("ActiveByToken after sale error = %v, want ErrListingNotFound", err)
	}
}
