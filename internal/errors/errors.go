package errors

import "net/http"

// Error codes carried by APIError and echoed as the problem's error_code
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// APIError is a request-level failure raised before any dataset work
// starts: an undecodable body, rejected fields, an oversized upload or a
// throttled client. Dataset failures are AppErrors.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// ValidationError names one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the details payload of a VALIDATION_FAILED error
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// New creates an APIError without details
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

var (
	ErrPayloadTooLarge   = New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Upload exceeds the maximum allowed size")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded")
)

// InvalidRequestWithError reports a body that could not be decoded; the
// decoder message becomes the details
func InvalidRequestWithError(err error) *APIError {
	e := New(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format")
	e.Details = err.Error()
	return e
}

// ErrValidation rejects a single field
func ErrValidation(field, message string) *APIError {
	return NewValidationErrors([]ValidationError{{Field: field, Message: message}})
}

// NewValidationErrors rejects every listed field at once
func NewValidationErrors(errs []ValidationError) *APIError {
	e := New(http.StatusBadRequest, CodeValidationFailed, "Request validation failed")
	e.Details = ValidationErrors{Errors: errs}
	return e
}
