package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/household-funds-ledger/internal/funds"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/requests"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// IdempotencyHeader lets a client retry AddTransaction safely.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	svc *funds.Service
}

func NewHandler(svc *funds.Service) *Handler {
	return &Handler{svc: svc}
}

type openAccountRequest struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

type decisionRequest struct {
	ApproverID string `json:"approver_id"`
}

type cancelRequest struct {
	RequesterID string `json:"requester_id"`
}

type createRequestBody struct {
	RequesterID   string          `json:"requester_id"`
	RequesterName string          `json:"requester_name"`
	Title         string          `json:"title"`
	Description   *string         `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Deadline      string          `json:"deadline"` // YYYY-MM-DD or RFC 3339
}

func (b createRequestBody) input() (requests.CreateInput, error) {
	in := requests.CreateInput{
		RequesterID:   b.RequesterID,
		RequesterName: b.RequesterName,
		Title:         b.Title,
		Description:   b.Description,
		Amount:        b.Amount,
	}
	if b.Deadline == "" {
		return in, nil
	}
	d, err := time.Parse(time.DateOnly, b.Deadline)
	if err != nil {
		d, err = time.Parse(time.RFC3339, b.Deadline)
	}
	if err != nil {
		return requests.CreateInput{}, xerrors.ErrInvalidInput
	}
	in.Deadline = &d
	return in, nil
}

type transactionRequest struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
	Type   models.Kind     `json:"type"`
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var in openAccountRequest
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := h.svc.OpenAccount(r.Context(), in.Name, in.Role)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.svc.ListChildren(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.GetHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionRequest
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.svc.AddTransaction(r.Context(), funds.AddTransactionInput{
		AccountID:      chi.URLParam(r, "id"),
		Title:          in.Title,
		Amount:         in.Amount,
		Kind:           in.Type,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decode(r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	in, err := body.input()
	if err != nil {
		writeFailure(w, err)
		return
	}
	req, err := h.svc.CreateRequest(r.Context(), in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListRequests filters by ?requester_id= or ?status=, newest first.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.FundRequest
		err  error
	)
	q := r.URL.Query()
	if requester := q.Get("requester_id"); requester != "" {
		list, err = h.svc.ListMyRequests(r.Context(), requester)
	} else {
		list, err = h.svc.ListRequests(r.Context(), models.RequestStatus(strings.ToUpper(q.Get("status"))))
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPendingRequests(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var in decisionRequest
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.svc.ApproveRequest(r.Context(), chi.URLParam(r, "id"), in.ApproverID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var in decisionRequest
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	req, err := h.svc.RejectRequest(r.Context(), chi.URLParam(r, "id"), in.ApproverID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var in cancelRequest
	if err := decode(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	ok, err := h.svc.CancelRequest(r.Context(), chi.URLParam(r, "id"), in.RequesterID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}
