package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	err := New(http.StatusBadRequest, CodeInvalidRequest, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Nil(t, err.Details)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{"payload too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, CodePayloadTooLarge},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests, CodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
		})
	}
}

func TestInvalidRequestWithError(t *testing.T) {
	err := InvalidRequestWithError(fmt.Errorf("unexpected EOF"))
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, CodeInvalidRequest, err.ErrorCode)
	assert.Equal(t, "unexpected EOF", err.Details)
}

func TestNewValidationErrors(t *testing.T) {
	err := NewValidationErrors([]ValidationError{
		{Field: "name", Message: "required"},
		{Field: "rows", Message: "min"},
	})
	assert.Equal(t, CodeValidationFailed, err.ErrorCode)

	details, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, details.Errors, 2)
	assert.Equal(t, "name", details.Errors[0].Field)

	single := ErrValidation("id", "id must be a row number")
	details, ok = single.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, []ValidationError{{Field: "id", Message: "id must be a row number"}}, details.Errors)
}
