package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Step      int               `json:"step,omitempty"`
	UsedAt    *time.Time        `json:"usedAt,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Fields answers 422 with one message per invalid field.
func Fields(w http.ResponseWriter, fields domain.FieldErrors) {
	JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:  "Some fields are invalid",
		Code:   CodeInvalidInput,
		Fields: fields,
	})
}

// Step answers 422 for a wizard submission that is not complete.
func Step(w http.ResponseWriter, err *domain.StepError) {
	JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error: err.Error(),
		Code:  CodeIncompleteStep,
		Step:  err.Step,
	})
}

// Token maps a failed token validation: 404 for unknown tokens, 410 for
// used, expired or rejected ones.
func Token(w http.ResponseWriter, v domain.TokenValidation) {
	status := http.StatusGone
	if v.Error == domain.TokenNotFound {
		status = http.StatusNotFound
	}
	JSON(w, status, ErrorResponse{
		Error:     v.Message,
		Code:      string(v.Error),
		UsedAt:    v.UsedAt,
		ExpiresAt: v.ExpiresAt,
	})
}

// Common error codes
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeIncompleteStep   = "INCOMPLETE_STEP"
	CodeConsentRequired  = "CONSENT_REQUIRED"
	CodeSubmitFailed     = "SUBMIT_FAILED"
	CodeInvalidStepRange = "INVALID_STEP"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
