package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/middleware"
)

// StatusClientClosedRequest is the non-standard status used when the
// customer dismissed the payment sheet.
const StatusClientClosedRequest = 499

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ECANCELED:
		return StatusClientClosedRequest // 499
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.ESERVER:
		return http.StatusBadGateway // 502
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"backend_status,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse logs err and writes it to the client.
// JSON clients get {"error": {...}}; anything else gets plain text.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, err, acceptsJSON(r))
}

// JSONErrorResponse is ErrorResponse for API routes that always speak JSON.
// Validation errors carry their field map.
func JSONErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, err, true)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error, asJSON bool) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := ErrorCodeToHTTPStatus(code)

	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"op", domain.ErrorOp(err),
		"status", status,
	}
	switch {
	case status >= 500:
		logger.Error("request failed", attrs...)
	case domain.IsValidationError(err):
		logger.Debug("request rejected", attrs...)
	default:
		logger.Info("request failed", attrs...)
	}

	if !asJSON {
		http.Error(w, message, status)
		return
	}

	body := errorBody{Code: code, Message: message}
	if backendStatus, ok := domain.ServerStatus(err); ok {
		body.Status = backendStatus
	}
	body.Fields = domain.GetValidationFields(err)
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// MethodNotAllowedResponse answers a known path hit with the wrong method.
// The caller sets the Allow header.
func MethodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	middleware.GetLogger(r.Context()).Info("method not allowed", "method", r.Method, "path", r.URL.Path)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]errorBody{"error": {
		Code:    "method_not_allowed",
		Message: r.Method + " is not supported here",
	}})
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Unauthorized("", "Sign in to continue"))
}

// BadRequestResponse is a convenience wrapper for malformed request bodies.
func BadRequestResponse(w http.ResponseWriter, r *http.Request, message string) {
	ErrorResponse(w, r, domain.Invalid("", message))
}

// InternalErrorResponse hides err behind a generic 500.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "", "An unexpected error occurred"))
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("", "Invalid request body: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// acceptsJSON checks if the client prefers JSON responses.
func acceptsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasSuffix(r.URL.Path, ".json")
}
