// Package memory implements domain.ListingStore in process memory. It
// backs tests and deployments that do not need durable listing history.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

// ListingStore keeps listings in a map keyed by id. All methods are
// safe for concurrent use.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[uint64]domain.Listing
	maxID    uint64
}

// NewListingStore returns an empty store.
func NewListingStore() *ListingStore {
	return &ListingStore{listings: make(map[uint64]domain.Listing)}
}

// Create implements domain.ListingStore.
func (s *ListingStore) Create(ctx context.Context, listing domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing.Price = new(big.Int).Set(listing.Price)
	s.listings[listing.ID] = listing
	if listing.ID > s.maxID {
		s.maxID = listing.ID
	}
	return nil
}

// Get implements domain.ListingStore.
func (s *ListingStore) Get(ctx context.Context, id uint64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return copyListing(listing), nil
}

// MarkSold implements domain.ListingStore.
func (s *ListingStore) MarkSold(ctx context.Context, id uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return domain.ErrListingNotFound
	}
	listing.Sold = true
	soldAt := at
	listing.SoldAt = &soldAt
	s.listings[id] = listing
	return nil
}

// List implements domain.ListingStore, ordered by id descending.
func (s *ListingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.listings))
	for id, l := range s.listings {
		if opts.SoldOnly && !l.Sold {
			continue
		}
		if opts.Since != nil {
			ts := l.CreatedAt
			if opts.SoldOnly && l.SoldAt != nil {
				ts = *l.SoldAt
			}
			if ts.Before(*opts.Since) {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			return nil, nil
		}
		ids = ids[opts.Offset:]
	}
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	out := make([]domain.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyListing(s.listings[id]))
	}
	return out, nil
}

// NextID implements domain.ListingStore.
func (s *ListingStore) NextID(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxID + 1, nil
}

// ActiveByToken implements domain.ListingStore.
func (s *ListingStore) ActiveByToken(ctx context.Context, tokenContract common.Address, tokenID uint64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.listings {
		if !l.Sold && l.TokenContract == tokenContract && l.TokenID == tokenID {
			return copyListing(l), nil
		}
	}
	return domain.Listing{}, domain.ErrListingNotFound
}

func copyListing(l domain.Listing) domain.Listing {
	l.Price = new(big.Int).Set(l.Price)
	if l.SoldAt != nil {
		at := *l.SoldAt
		l.SoldAt = &at
	}
	return l
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
