package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	companion "github.com/Protocol-Lattice/go-companion"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, companion.ErrEmptyPrompt),
		errors.Is(err, companion.ErrNotEnoughHistory),
		errors.Is(err, companion.ErrMessageTooShort):
		return http.StatusBadRequest
	case errors.Is(err, companion.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, companion.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, companion.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusBadGateway:
		msg = companion.ErrGeneration.Error()
	}
	writeError(w, status, msg)
}
