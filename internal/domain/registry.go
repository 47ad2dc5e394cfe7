package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRegistry is the capability contract the ledger requires from an
// external token registry. The registry owns token identity, metadata,
// and per-owner balances; the ledger only queries ownership and moves
// custody through it.
type TokenRegistry interface {
	// OwnerOf reports the current owner of a token. It fails with
	// ErrTokenNotFound when the token was never minted.
	OwnerOf(ctx context.Context, tokenContract common.Address, tokenID uint64) (common.Address, error)

	// IsApprovedForAll reports whether operator may move any of
	// owner's tokens.
	IsApprovedForAll(ctx context.Context, tokenContract, owner, operator common.Address) (bool, error)

	// TransferFrom moves a token from one holder to another on behalf
	// of operator. It fails with ErrNotTokenOwner when from is not the
	// current owner, and with ErrTransferNotAuthorized when operator
	// is neither the owner nor an approved operator.
	TransferFrom(ctx context.Context, tokenContract, operator, from, to common.Address, tokenID uint64) error
}
