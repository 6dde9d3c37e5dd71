package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type APIResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: "error", Code: code, Message: msg})
}

// writeFailure maps a domain error to its status code. A *TransitionError
// also carries the request state it was refused in.
func writeFailure(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	resp := APIResponse{Status: "error", Code: xerrors.Code(err), Message: err.Error()}
	if status == http.StatusInternalServerError && resp.Code == "INTERNAL" {
		resp.Message = "internal error"
	}

	var te *xerrors.TransitionError
	if errors.As(err, &te) && te.Request != nil {
		resp.Data = te.Request
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrSagaCompensationFailure):
		return http.StatusInternalServerError
	case errors.Is(err, xerrors.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, xerrors.ErrAccountNotFound), errors.Is(err, xerrors.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrInvalidStateTransition), errors.Is(err, xerrors.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return xerrors.ErrInvalidInput
	}
	return nil
}
