package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries. Since
// filters on creation time, or on sale time when SoldOnly is set.
type ListOpts struct {
	Limit    int
	Offset   int
	SoldOnly bool
	Since    *time.Time
}

// ListingStore persists the listing collection. Listings are append-only
// apart from the one-way sold flip; nothing is ever deleted.
type ListingStore interface {
	// Create records a new listing. The caller assigns the id.
	Create(ctx context.Context, listing Listing) error

	// Get returns the full listing record, sold or unsold. It fails
	// with ErrListingNotFound for an id that was never assigned.
	Get(ctx context.Context, id uint64) (Listing, error)

	// MarkSold flips the sold flag and stamps the sale time. It fails
	// with ErrListingNotFound for unknown ids.
	MarkSold(ctx context.Context, id uint64, at time.Time) error

	// List returns listings ordered by id descending.
	List(ctx context.Context, opts ListOpts) ([]Listing, error)

	// NextID returns the next sequential listing id (max assigned + 1,
	// starting at 1).
	NextID(ctx context.Context) (uint64, error)

	// ActiveByToken returns the unsold listing holding custody of the
	// given token, or ErrListingNotFound when none exists.
	ActiveByToken(ctx context.Context, tokenContract common.Address, tokenID uint64) (Listing, error)
}

// EventBus publishes committed marketplace events for external
// consumers. Publication is post-commit and best-effort; a bus failure
// never rolls back a settlement.
type EventBus interface {
	PublishEvent(ctx context.Context, event Event) error
}

// StreamMessage is a single entry read back from the durable event
// stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// LockManager provides distributed mutual exclusion so that only one
// process at a time runs the ledger's single-writer loop.
type LockManager interface {
	// Acquire obtains the named lock for at most ttl. On success it
	// returns an unlock function, which is safe to call more than
	// once. It fails with ErrLockHeld when another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter stores an opaque payload under a key in object storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
