// Package handlers implements the sitesim REST surface: starting a run from a
// signature and parameter values, stopping and querying a run, and fetching
// its observable report. No snapshot endpoint is served.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sitesim/reactor/pkg/errors"
)

// parsePagination extracts page and page_size from query parameters.
func parsePagination(r *http.Request) (int, int) {
	page := 1
	pageSize := 20

	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return page, pageSize
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, statusCode int, err error) {
	resp := ErrorResponse{
		Code:    http.StatusText(statusCode),
		Message: err.Error(),
	}
	writeJSON(w, statusCode, resp)
}

// writeAppError maps application-level errors to HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		writeError(w, http.StatusNotFound, err)
	case errors.CodeInvalidParam:
		writeError(w, http.StatusBadRequest, err)
	case errors.CodeConflict:
		writeError(w, http.StatusConflict, err)
	case errors.CodeUnauthorized:
		writeError(w, http.StatusUnauthorized, err)
	case errors.CodeForbidden:
		writeError(w, http.StatusForbidden, err)
	case errors.CodeRateLimit:
		writeError(w, http.StatusTooManyRequests, err)
	default:
		// Mask internal errors
		writeError(w, http.StatusInternalServerError, errors.New(errors.CodeInternal, "internal server error"))
	}
}

