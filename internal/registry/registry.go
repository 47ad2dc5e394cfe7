// Package registry provides an in-memory ERC-721-style token registry
// implementing the domain.TokenRegistry capability. It backs tests and
// single-process deployments where no external chain registry exists.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

// Registry is a single token collection: sequential token ids, one
// owner per token, a metadata URI per token, and owner→operator
// blanket approvals. All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	name    string
	symbol  string
	address common.Address

	tokenCount uint64
	owners     map[uint64]common.Address
	uris       map[uint64]string
	balances   map[common.Address]uint64
	// approvals[owner][operator]
	approvals map[common.Address]map[common.Address]bool
}

// New creates an empty collection reachable at the given contract
// address.
func New(name, symbol string, address common.Address) *Registry {
	return &Registry{
		name:      name,
		symbol:    symbol,
		address:   address,
		owners:    make(map[uint64]common.Address),
		uris:      make(map[uint64]string),
		balances:  make(map[common.Address]uint64),
		approvals: make(map[common.Address]map[common.Address]bool),
	}
}

// Name returns the collection name.
func (r *Registry) Name() string { return r.name }

// Symbol returns the collection symbol.
func (r *Registry) Symbol() string { return r.symbol }

// Address returns the collection's contract address.
func (r *Registry) Address() common.Address { return r.address }

// TokenCount returns the number of tokens minted so far.
func (r *Registry) TokenCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokenCount
}

// Mint creates a new token owned by owner with the given metadata URI
// and returns its id. Ids are sequential from 1.
func (r *Registry) Mint(ctx context.Context, owner common.Address, uri string) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, fmt.Errorf("registry: mint to the zero address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokenCount++
	id := r.tokenCount
	r.owners[id] = owner
	r.uris[id] = uri
	r.balances[owner]++
	return id, nil
}

// TokenURI returns the metadata URI for a token.
func (r *Registry) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uri, ok := r.uris[tokenID]
	if !ok {
		return "", domain.ErrTokenNotFound
	}
	return uri, nil
}

// BalanceOf returns the number of tokens held by owner.
func (r *Registry) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[owner], nil
}

// SetApprovalForAll grants or revokes operator's right to move any of
// owner's tokens.
func (r *Registry) SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops, ok := r.approvals[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		r.approvals[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
	return nil
}

// OwnerOf implements domain.TokenRegistry.
func (r *Registry) OwnerOf(ctx context.Context, tokenContract common.Address, tokenID uint64) (common.Address, error) {
	if tokenContract != r.address {
		return common.Address{}, domain.ErrTokenNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, domain.ErrTokenNotFound
	}
	return owner, nil
}

// IsApprovedForAll implements domain.TokenRegistry.
func (r *Registry) IsApprovedForAll(ctx context.Context, tokenContract, owner, operator common.Address) (bool, error) {
	if tokenContract != r.address {
		return false, domain.ErrTokenNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approvals[owner][operator], nil
}

// TransferFrom implements domain.TokenRegistry. The operator must be
// the current owner or hold a blanket approval from them.
func (r *Registry) TransferFrom(ctx context.Context, tokenContract, operator, from, to common.Address, tokenID uint64) error {
	if tokenContract != r.address {
		return domain.ErrTokenNotFound
	}
	if to == (common.Address{}) {
		return fmt.Errorf("registry: transfer to the zero address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if owner != from {
		return domain.ErrNotTokenOwner
	}
	if operator != owner && !r.approvals[owner][operator] {
		return domain.ErrTransferNotAuthorized
	}

	r.owners[tokenID] = to
	r.balances[from]--
	r.balances[to]++
	return nil
}

// Compile-time interface check.
var _ domain.TokenRegistry = (*Registry)(nil)
