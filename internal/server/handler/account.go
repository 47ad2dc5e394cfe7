package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// AccountService defines the balance book operations the account
// handler needs. Deposit is the development faucet; production
// deployments disable the endpoint via configuration.
type AccountService interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Deposit(ctx context.Context, account common.Address, amount *big.Int) error
}

// AccountHandler serves account balance endpoints.
type AccountHandler struct {
	bank   AccountService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(bank AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		bank:   bank,
		logger: logger,
	}
}

// balanceResponse reports an account balance in wei.
type balanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// GetBalance returns the current balance of an account.
// GET /api/accounts/{address}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.bank.BalanceOf(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: balance lookup failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: balance.String(),
	})
}

// depositRequest is the JSON body for the faucet endpoint.
type depositRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Deposit credits an account with funds.
// POST /api/accounts/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal wei amount")
		return
	}

	if err := h.bank.Deposit(r.Context(), account, amount); err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.bank.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: balance.String(),
	})
}
