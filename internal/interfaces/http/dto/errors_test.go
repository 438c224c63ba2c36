package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeBusinessRule, http.StatusUnprocessableEntity},
		{ErrCodeInsufficientHistory, http.StatusUnprocessableEntity},
		{ErrCodeExternalService, http.StatusBadGateway},
		{ErrCodeSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{"ERR_NEVER_DEFINED", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatus(tt.code), tt.code)
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeBusinessRule, NormalizeErrorCode("CONSTRAINT_VIOLATION"))
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
	assert.Equal(t, ErrCodeSignatureInvalid, NormalizeErrorCode("SIGNATURE_INVALID"))

	// already normalized or unknown codes pass through unchanged
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
	assert.Equal(t, "SOMETHING_ELSE", NormalizeErrorCode("SOMETHING_ELSE"))
}

// every mapped legacy code must land on a code with a known HTTP status
func TestLegacyMappingTargetsHaveStatuses(t *testing.T) {
	for legacy, code := range LegacyErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[code]
		assert.True(t, ok, "legacy code %s maps to %s which has no HTTP status", legacy, code)
	}
}
