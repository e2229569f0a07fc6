package api

import (
	"net/http"

	"github.com/onegen/bank-api/internal/domain"
)

// ListAccountsHandler lists the caller's bank accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	accounts, err := h.accounts.ListAccounts(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []domain.BankAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// SetPrimaryAccountHandler makes one of the caller's accounts primary.
func (h *Handlers) SetPrimaryAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.accounts.SetPrimaryAccount(r.Context(), user.ID, accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// VerifyAccountHandler records an account executive's KYC decision.
func (h *Handlers) VerifyAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.AccountVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.accounts.VerifyAccount(r.Context(), user.ID, user.Role, accountID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// DepositHandler lets a teller credit an account.
func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := h.accounts.Deposit(r.Context(), user.ID, user.Role, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// WithdrawHandler debits one of the caller's accounts.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.WithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := h.accounts.Withdraw(r.Context(), user.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// TransferHandler moves money between two accounts.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := h.accounts.Transfer(r.Context(), user.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// ListTransactionsHandler returns the caller's ledger.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	txns, err := h.accounts.ListTransactions(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}
