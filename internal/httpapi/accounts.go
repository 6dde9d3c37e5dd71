package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// AccountHandler exposes an AccountStore over HTTP. It is the surface the
// accountsvc client talks to when balances live in another process.
type AccountHandler struct {
	store interfaces.AccountStore
}

func NewAccountHandler(store interfaces.AccountStore) *AccountHandler {
	return &AccountHandler{store: store}
}

type balanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type balanceChange struct {
	Amount decimal.Decimal `json:"amount"`
	Type   models.Kind     `json:"type"`
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	if !role.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "role must be PARENT or CHILD")
		return
	}
	accounts, err := h.store.ListByRole(r.Context(), role)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Put creates the account under the id in the path.
func (h *AccountHandler) Put(w http.ResponseWriter, r *http.Request) {
	var account models.Account
	if err := decode(r, &account); err != nil {
		writeFailure(w, err)
		return
	}
	account.ID = chi.URLParam(r, "id")
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		writeFailure(w, err)
		return
	}
	created, err := h.store.GetAccount(r.Context(), account.ID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.store.GetBalance(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}

// ChangeBalance applies {amount, type}: INCOME credits, EXPENSE debits.
func (h *AccountHandler) ChangeBalance(w http.ResponseWriter, r *http.Request) {
	var in balanceChange
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		balance decimal.Decimal
		err     error
	)
	switch in.Type {
	case models.KindIncome:
		balance, err = h.store.Credit(r.Context(), id, in.Amount)
	case models.KindExpense:
		balance, err = h.store.Debit(r.Context(), id, in.Amount)
	default:
		err = xerrors.ErrInvalidInput
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}
