package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

// ListingService defines the methods the listing handler requires from
// the settlement ledger.
type ListingService interface {
	ListItem(ctx context.Context, tokenContract common.Address, tokenID uint64, price *big.Int, seller common.Address) (uint64, error)
	BuyItem(ctx context.Context, id uint64, remitted *big.Int, buyer common.Address) error
	TotalListingPrice(ctx context.Context, id uint64) (*big.Int, error)
	ListingItems(ctx context.Context, id uint64) (domain.Listing, error)
	Listings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
	FeeAccount() common.Address
	FeePercent() int64
	Custody() common.Address
}

// ListingHandler serves listing and settlement HTTP endpoints.
type ListingHandler struct {
	ledger ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given ledger and
// logger.
func NewListingHandler(ledger ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		ledger: ledger,
		logger: logger,
	}
}

// feesResponse is the fee configuration payload.
type feesResponse struct {
	FeeAccount string `json:"fee_account"`
	FeePercent int64  `json:"fee_percent"`
	Custody    string `json:"custody_account"`
}

// GetFees returns the immutable fee configuration.
// GET /api/fees
func (h *ListingHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, feesResponse{
		FeeAccount: h.ledger.FeeAccount().Hex(),
		FeePercent: h.ledger.FeePercent(),
		Custody:    h.ledger.Custody().Hex(),
	})
}

// listListingsResponse wraps the listing history response.
type listListingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// ListListings returns listing history, newest first.
// GET /api/listings?limit=50&offset=0&sold=true
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.ledger.Listings(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listListingsResponse{Listings: listings})
}

// GetListing returns the full listing record, sold or unsold.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.ledger.ListingItems(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// totalPriceResponse reports the exact amount a buyer must remit.
type totalPriceResponse struct {
	ListingID  uint64 `json:"listing_id"`
	TotalPrice string `json:"total_price"`
}

// GetTotalPrice returns price + fee for a listing.
// GET /api/listings/{id}/total
func (h *ListingHandler) GetTotalPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	total, err := h.ledger.TotalListingPrice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totalPriceResponse{
		ListingID:  id,
		TotalPrice: total.String(),
	})
}

// createListingRequest is the JSON body for creating a listing.
type createListingRequest struct {
	TokenContract string `json:"token_contract"`
	TokenID       uint64 `json:"token_id"`
	Price         string `json:"price"`
	Seller        string `json:"seller"`
}

// createListingResponse returns the assigned listing id.
type createListingResponse struct {
	ListingID uint64 `json:"listing_id"`
}

// CreateListing lists a token for sale and pulls it into custody.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seller, ok := parseAddress(req.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "seller must be a hex address")
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "price must be a decimal wei amount")
		return
	}
	// The ledger validates the contract address itself, including the
	// zero-address case; parse leniently here.
	tokenContract := common.HexToAddress(req.TokenContract)

	id, err := h.ledger.ListItem(r.Context(), tokenContract, req.TokenID, price, seller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create listing failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createListingResponse{ListingID: id})
}

// purchaseRequest is the JSON body for settling a listing. Value is the
// remitted amount attached to this call; it must equal the total
// listing price exactly.
type purchaseRequest struct {
	Buyer string `json:"buyer"`
	Value string `json:"value"`
}

// Purchase settles a listing.
// POST /api/listings/{id}/purchase
func (h *ListingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	buyer, ok := parseAddress(req.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "buyer must be a hex address")
		return
	}
	value, ok := parseAmount(req.Value)
	if !ok {
		writeError(w, http.StatusBadRequest, "value must be a decimal wei amount")
		return
	}

	if err := h.ledger.BuyItem(r.Context(), id, value, buyer); err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: purchase failed",
				slog.Uint64("listing_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "sold",
		"listing_id": id,
	})
}
