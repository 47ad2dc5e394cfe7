package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event channel names used on the bus and mirrored to WebSocket clients.
const (
	ChannelListed = "ch:listed"
	ChannelBought = "ch:bought"

	// EventStream is the durable stream indexers replay from.
	EventStream = "market:events"
)

// EventType discriminates marketplace event envelopes.
type EventType string

const (
	EventTypeListed EventType = "listed"
	EventTypeBought EventType = "bought"
)

// ListedEvent is emitted after a listing commits. Field order matches
// the external indexer contract:
// (listingId, tokenContract, tokenId, price, seller).
type ListedEvent struct {
	ListingID     uint64         `json:"listing_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       uint64         `json:"token_id"`
	Price         *big.Int       `json:"price"`
	Seller        common.Address `json:"seller"`
}

// BoughtEvent is emitted after a settlement commits. Field order:
// (listingId, tokenContract, tokenId, price, seller, buyer).
type BoughtEvent struct {
	ListingID     uint64         `json:"listing_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       uint64         `json:"token_id"`
	Price         *big.Int       `json:"price"`
	Seller        common.Address `json:"seller"`
	Buyer         common.Address `json:"buyer"`
}

// Event is the envelope published on the bus.
type Event struct {
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewListedEvent wraps a ListedEvent in a publishable envelope.
func NewListedEvent(e ListedEvent, at time.Time) (Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventTypeListed, OccurredAt: at, Payload: payload}, nil
}

// NewBoughtEvent wraps a BoughtEvent in a publishable envelope.
func NewBoughtEvent(e BoughtEvent, at time.Time) (Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventTypeBought, OccurredAt: at, Payload: payload}, nil
}

// Channel returns the pub/sub channel an event of this type belongs on.
func (e Event) Channel() string {
	switch e.Type {
	case EventTypeListed:
		return ChannelListed
	case EventTypeBought:
		return ChannelBought
	default:
		return "ch:unknown"
	}
}
