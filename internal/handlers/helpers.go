package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"gridpulse/internal/database"
)

// Error codes returned in the response envelope.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeInternal         = "internal_error"
	CodeMethodNotAllowed = "method_not_allowed"
)

// apiError is the error half of the response envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// response is the envelope every API endpoint replies with.
type response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

// MethodNotAllowed writes the envelope error for an unsupported method. The
// router uses it for its method switches.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// decodeJSON decodes the request body as JSON into the provided value.
// Returns true on success, false on error (and writes error response).
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON writes the value wrapped in a success envelope.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	encode(w, statusCode, &response{Success: true, Data: v})
}

// writeError writes a failure envelope with the given code and message.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	encode(w, statusCode, &response{Success: false, Error: &apiError{Code: code, Message: message}})
}

func encode(w http.ResponseWriter, statusCode int, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// requireQueryParam extracts a query parameter and validates it's not empty.
// Returns the value and true if valid, empty string and false otherwise (and
// writes error response).
func requireQueryParam(w http.ResponseWriter, r *http.Request, paramName string) (string, bool) {
	value := r.URL.Query().Get(paramName)
	if value == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, paramName+" query parameter is required")
		return "", false
	}
	return value, true
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// DefaultPagination contains the default pagination values.
var DefaultPagination = Pagination{Limit: 50, Offset: 0}

// maxPageSize caps the limit query parameter.
const maxPageSize = 200

// parsePagination extracts limit and offset from query parameters.
// Uses defaults if not provided or invalid.
func parsePagination(r *http.Request) Pagination {
	p := DefaultPagination

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			if l > maxPageSize {
				l = maxPageSize
			}
			p.Limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			p.Offset = o
		}
	}

	return p
}

// handleStoreError maps the store's sentinel errors to HTTP responses.
// Returns true if the error was handled.
func handleStoreError(w http.ResponseWriter, err error, resource string) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, resource+" not found")
	case errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, CodeConflict, "invalid state transition for "+resource)
	default:
		slog.Error("Store error", "resource", resource, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to access "+resource)
	}
	return true
}
