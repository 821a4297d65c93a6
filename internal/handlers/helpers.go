// Package handlers exposes the circulation engine as a JSON HTTP API.
package handlers

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"library-circulation/internal/middleware"
	"library-circulation/internal/models"
)

var json = jsoniter.ConfigFastest

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case models.IsConflict(err), errors.Is(err, models.ErrReservationExpired):
		return http.StatusConflict
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports a service failure. Unexpected errors are logged and
// hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		middleware.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// emptyIfNil keeps JSON list responses as [] rather than null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
