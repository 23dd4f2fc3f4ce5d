package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"matador/internal/core"
	"matador/internal/log"
)

const (
	msgUserNotFound        = "Usuario no encontrado"
	msgTransactionNotFound = "Transacción no encontrada"
	msgInternal            = "Error interno del servidor"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps err to a status code. notFound is the message used for
// core.ErrNotFound.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var ve *core.ValidationError
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, notFound)
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrInvalidPeriod):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Error(), Field: ve.Field})
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").ToSlice()...)
		writeErrorMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
