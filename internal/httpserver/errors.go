package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"directchat/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorTable = []struct {
	sentinel error
	status   int
	code     string
}{
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
}

// writeError maps a service error onto a status code. Anything that is not a
// known client error is logged and reported as a bare internal error.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.sentinel) {
			writeJSON(w, e.status, errorResponse{Error: clientMessage(err, e.sentinel), Code: e.code})
			return
		}
	}
	log.Error("request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: domain.ErrInternal.Error(), Code: "internal"})
}

// clientMessage strips the sentinel prefix added by fmt.Errorf("%w: ...").
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && rest != "" {
		return rest
	}
	return msg
}
