package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	"github.com/goccy/go-json"
)

// Error codes in the JSON error body.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeModeDisabled = "MODE_DISABLED"
	CodeNotReady     = "NOT_READY"
	CodeCanceled     = "REQUEST_CANCELED"
	CodeInternal     = "INTERNAL_ERROR"
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"encode response"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // client may have gone away
}

// writeError maps a handler error to its status code and error body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	switch code {
	case CodeInternal:
		logger.Error("request failed", "error", err)
		msg = "internal error"
	case CodeCanceled:
		logger.Debug("request abandoned", "error", err)
	}
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: msg}})
}

func classify(err error) (int, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, pipeline.ErrModeDisabled):
		return http.StatusBadRequest, CodeModeDisabled
	case errors.Is(err, pipeline.ErrNotReady):
		return http.StatusServiceUnavailable, CodeNotReady
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
