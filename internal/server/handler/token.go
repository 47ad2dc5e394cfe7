package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// TokenService defines the registry operations the token handler needs.
type TokenService interface {
	Mint(ctx context.Context, to common.Address, uri string) (uint64, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	OwnerOf(ctx context.Context, tokenContract common.Address, tokenID uint64) (common.Address, error)
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)
	SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error
	Address() common.Address
	TokenCount() uint64
}

// TokenHandler serves token registry endpoints.
type TokenHandler struct {
	registry TokenService
	logger   *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(registry TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		registry: registry,
		logger:   logger,
	}
}

// mintRequest is the JSON body for minting a token.
type mintRequest struct {
	To  string `json:"to"`
	URI string `json:"uri"`
}

// mintResponse returns the freshly minted token id.
type mintResponse struct {
	TokenID uint64 `json:"token_id"`
}

// Mint creates a new token owned by the given account.
// POST /api/tokens/mint
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "to must be a hex address")
		return
	}

	id, err := h.registry.Mint(r.Context(), to, req.URI)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mintResponse{TokenID: id})
}

// tokenResponse describes a single token.
type tokenResponse struct {
	TokenID uint64 `json:"token_id"`
	Owner   string `json:"owner"`
	URI     string `json:"uri"`
}

// GetToken returns the owner and metadata URI of a token.
// GET /api/tokens/{id}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	owner, err := h.registry.OwnerOf(r.Context(), h.registry.Address(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	uri, err := h.registry.TokenURI(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		TokenID: id,
		Owner:   owner.Hex(),
		URI:     uri,
	})
}

// approvalRequest is the JSON body for operator approval.
type approvalRequest struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// SetApproval grants or revokes an operator's right to transfer every
// token the owner holds.
// POST /api/tokens/approval
func (h *TokenHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "owner must be a hex address")
		return
	}
	operator, ok := parseAddress(req.Operator)
	if !ok {
		writeError(w, http.StatusBadRequest, "operator must be a hex address")
		return
	}

	if err := h.registry.SetApprovalForAll(r.Context(), owner, operator, req.Approved); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    owner.Hex(),
		"operator": operator.Hex(),
		"approved": req.Approved,
	})
}

// registryResponse summarizes the registry collection.
type registryResponse struct {
	ContractAddress string `json:"contract_address"`
	TokenCount      uint64 `json:"token_count"`
}

// GetRegistry returns the registry contract address and the number of
// minted tokens.
// GET /api/tokens
func (h *TokenHandler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, registryResponse{
		ContractAddress: h.registry.Address().Hex(),
		TokenCount:      h.registry.TokenCount(),
	})
}
