// Package domain defines the core marketplace types, the capability
// interfaces the settlement ledger depends on, and the error taxonomy
// shared across the codebase.
package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Listing is the unit of sale: one token offered at a fixed price.
// A listing is created unsold, flips to sold exactly once on a
// successful purchase, and is never deleted afterwards.
type Listing struct {
	ID            uint64
	TokenContract common.Address
	TokenID       uint64
	Price         *big.Int
	Seller        common.Address
	Sold          bool
	CreatedAt     time.Time
	SoldAt        *time.Time
}

// listingJSON is the wire representation of a Listing. Prices are
// decimal strings so wei-scale values survive JSON number precision.
type listingJSON struct {
	ID            uint64     `json:"id"`
	TokenContract string     `json:"token_contract"`
	TokenID       uint64     `json:"token_id"`
	Price         string     `json:"price"`
	Seller        string     `json:"seller"`
	Sold          bool       `json:"sold"`
	CreatedAt     time.Time  `json:"created_at"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (l Listing) MarshalJSON() ([]byte, error) {
	price := "0"
	if l.Price != nil {
		price = l.Price.String()
	}
	return json.Marshal(listingJSON{
		ID:            l.ID,
		TokenContract: l.TokenContract.Hex(),
		TokenID:       l.TokenID,
		Price:         price,
		Seller:        l.Seller.Hex(),
		Sold:          l.Sold,
		CreatedAt:     l.CreatedAt,
		SoldAt:        l.SoldAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var raw listingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(raw.Price, 10)
	if !ok {
		return ErrInvalidAmount
	}
	l.ID = raw.ID
	l.TokenContract = common.HexToAddress(raw.TokenContract)
	l.TokenID = raw.TokenID
	l.Price = price
	l.Seller = common.HexToAddress(raw.Seller)
	l.Sold = raw.Sold
	l.CreatedAt = raw.CreatedAt
	l.SoldAt = raw.SoldAt
	return nil
}

// FeeConfig is the process-wide fee configuration, fixed when the
// ledger is constructed. FeeAccount receives the protocol's cut;
// FeePercent is an integer percentage added on top of every price.
type FeeConfig struct {
	FeeAccount common.Address
	FeePercent int64
}
