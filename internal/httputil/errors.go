package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the OpenAI-style error envelope every endpoint returns.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	QuieterReq string `json:"quieter_request_id,omitempty"`
}

// Class fixes the status, type and code of one family of errors.
type Class struct {
	Status int
	Type   string
	Code   string
}

var (
	ErrAuth           = Class{http.StatusUnauthorized, "authentication_error", "invalid_api_key"}
	ErrBadRequest     = Class{http.StatusBadRequest, "invalid_request_error", "invalid_request"}
	ErrNotFound       = Class{http.StatusNotFound, "invalid_request_error", "not_found"}
	ErrModelNotFound  = Class{http.StatusNotFound, "invalid_request_error", "model_not_found"}
	ErrModelDenied    = Class{http.StatusForbidden, "permission_error", "model_denied"}
	ErrBudget         = Class{http.StatusPaymentRequired, "budget_error", "budget_exceeded"}
	ErrRateLimit      = Class{http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded"}
	ErrContentBlocked = Class{http.StatusUnavailableForLegalReasons, "content_filter_error", "content_blocked"}
	ErrInternal       = Class{http.StatusInternalServerError, "server_error", "internal_error"}
	ErrUpstream       = Class{http.StatusBadGateway, "upstream_error", "upstream_error"}
	ErrNoModels       = Class{http.StatusServiceUnavailable, "server_error", "no_models_configured"}
	ErrUnavailable    = Class{http.StatusServiceUnavailable, "server_error", "service_unavailable"}
)

// Write renders message as an error of class c.
func Write(w http.ResponseWriter, requestID string, c Class, message string) {
	WriteJSON(w, requestID, c.Status, APIError{Error: APIErrorBody{
		Message:    message,
		Type:       c.Type,
		Code:       c.Code,
		QuieterReq: requestID,
	}})
}

// WriteJSON writes v with the given status and, when set, the request id header.
func WriteJSON(w http.ResponseWriter, requestID string, statusCode int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if requestID != "" {
		h.Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
