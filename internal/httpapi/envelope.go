// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/pkg/errutil"
)

// successEnvelope wraps every successful response.
type successEnvelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// errorBody is the error member of an errorEnvelope.
type errorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []auth.Detail `json:"details,omitempty"`
}

// errorEnvelope wraps every failed response.
type errorEnvelope struct {
	Success   bool      `json:"success"`
	Error     errorBody `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// Codes and messages for failures that carry no *auth.Error.
const (
	codeInternal    = "INTERNAL_SERVER_ERROR"
	messageInternal = "Something went wrong"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthorized, auth.KindToken:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		if auth.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.DebugContext(r.Context(), "write response failed", "error", err)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	h.writeJSON(w, r, status, successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: h.now().UTC(),
	})
}

// writeError renders err. Server-side failures are logged; their causes
// never reach the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	body := errorBody{Code: codeInternal, Message: messageInternal}
	var aerr *auth.Error
	if errors.As(err, &aerr) {
		body = errorBody{Code: aerr.Code, Message: aerr.Message, Details: aerr.Details}
	}

	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	h.writeJSON(w, r, status, errorEnvelope{
		Success:   false,
		Error:     body,
		Timestamp: h.now().UTC(),
		Path:      r.URL.RequestURI(),
	})
}
