package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/gateway"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// Response is the uniform envelope returned by the gateway endpoint.
type Response struct {
	Success    bool                   `json:"success"`
	Data       any                    `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Violations []validation.Violation `json:"violations,omitempty"`
}

// Error codes carried in Response.Code.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthenticated"
	ErrCodeForbidden    = "forbidden"
	ErrCodeValidation   = "validation_error"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnavailable  = "storage_unavailable"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// Token verification outcomes returned by the verifyToken action.
const (
	VerifyTokenExpired   = "token_expired"
	VerifyTokenInvalid   = "token_invalid"
	VerifyUnauthenticate = "unauthenticated"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeSuccess writes a 200 success envelope.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// writeError writes a failure envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Error: message, Code: code})
}

// writeBadRequest writes a 400 failure envelope.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 failure envelope.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor maps a gateway error kind to an HTTP status and code.
func statusFor(kind gateway.Kind) (int, string) {
	switch kind {
	case gateway.KindAuthentication:
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case gateway.KindAuthorization:
		return http.StatusForbidden, ErrCodeForbidden
	case gateway.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case gateway.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case gateway.KindStorage:
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeGatewayError converts any gateway error into the failure envelope.
// Only caller-safe messages leave the process.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, action string, err error) {
	kind := gateway.KindOf(err)
	status, code := statusFor(kind)
	if kind == gateway.KindInternal || kind == gateway.KindStorage {
		s.logger.Error("gateway request failed",
			"action", action,
			"kind", string(kind),
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, status, Response{
		Error:      gateway.PublicMessage(err),
		Code:       code,
		Violations: gateway.Violations(err),
	})
}

// verifyFailure names why a token did not verify.
func verifyFailure(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return VerifyTokenExpired
	case errors.Is(err, auth.ErrTokenMalformed), errors.Is(err, auth.ErrTokenBadSignature):
		return VerifyTokenInvalid
	default:
		return VerifyUnauthenticate
	}
}
