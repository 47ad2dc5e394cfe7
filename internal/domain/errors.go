package domain

import "errors"

var (
	// Validation errors surfaced by listing creation.
	ErrInvalidPrice         = errors.New("price must be greater than 0")
	ErrInvalidTokenID       = errors.New("token id must be greater than 0")
	ErrInvalidTokenContract = errors.New("token contract address must be valid")
	ErrNotTokenOwner        = errors.New("caller must own the token to list it")

	// Lookup errors.
	ErrListingNotFound = errors.New("listing does not exist")
	ErrTokenNotFound   = errors.New("token does not exist")
	ErrNotFound        = errors.New("not found")

	// State errors surfaced by purchase.
	ErrItemAlreadySold  = errors.New("item is already sold")
	ErrCannotBuyOwnItem = errors.New("cannot buy your own listing")

	// Payment errors.
	ErrIncorrectPayment  = errors.New("remitted value differs from the total listing price")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")

	// Transfer errors propagated from the registry or balance book.
	ErrTransferNotAuthorized = errors.New("transfer not authorized")
	ErrPayoutFailed          = errors.New("seller payout failed")

	// Infrastructure errors.
	ErrLockHeld = errors.New("lock already held")
)
