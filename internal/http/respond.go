package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"bossweek/internal/amqp"
	"bossweek/internal/core"
	"bossweek/internal/log"
	"bossweek/internal/lookup"
	"bossweek/internal/services"
	"bossweek/internal/storage"
)

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := apiResponse{Success: status < 400, Data: data}
	_ = json.NewEncoder(w).Encode(resp)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Error: &apiError{Code: code, Message: message}})
}

// errorStatus maps domain errors to a status, a code and a message safe to
// return to the caller.
func errorStatus(err error) (int, string, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, core.ErrInvalid), errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid", err.Error()
	case errors.Is(err, services.ErrRefreshDisabled), errors.Is(err, services.ErrExportDisabled):
		return http.StatusNotImplemented, "not_configured", err.Error()
	case errors.Is(err, amqp.ErrCircuitOpen), errors.Is(err, lookup.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "dependency unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// fail logs server side failures and writes the mapped error.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	respondError(w, status, code, msg)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &core.ValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

// param returns an unescaped, trimmed path parameter. Character and boss
// names are usually Hangul, so they arrive percent-encoded.
func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return sanitizeInput(raw)
}

func query(r *http.Request, name string) string {
	return sanitizeInput(r.URL.Query().Get(name))
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
