package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

func (h *HTTPHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.GetWallet(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, wallet)
}

func (h *HTTPHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}

	wallet, err := h.wallets.Deposit(r.Context(), userID(r), req.Amount, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "deposit successful", Data: wallet})
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
		return
	}

	filter := domain.TransactionFilter{
		Type:   domain.TransactionType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}
	txns, err := h.wallets.TransactionHistory(r.Context(), userID(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, txns)
}

func (h *HTTPHandler) AuditWallet(w http.ResponseWriter, r *http.Request) {
	audit, err := h.wallets.Audit(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, audit)
}
