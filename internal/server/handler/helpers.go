// Package handler holds the HTTP handlers of the marketplace API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes and
// writes the response. Unknown errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "operation in progress, retry shortly")
	case domain.IsStateConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case isInsufficientFunds(err):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isInsufficientFunds(err error) bool {
	var ife *domain.InsufficientFundsError
	return errors.As(err, &ife)
}

// parseListOpts extracts pagination from the query string. The domain clamp
// applies on top, so out-of-range values degrade rather than fail.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	var opts domain.ListOpts
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	return opts.Clamp()
}
