package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// StandardError
// ==========================

func TestStandardError_ErrorString(t *testing.T) {
	err := NewDraftNotFoundError("applicants-2026", "u-1")
	assert.Equal(t, "StandardError[DRAFT_NOT_FOUND]: Applicant draft not found", err.Error())
	assert.Contains(t, err.Details, "applicants-2026")
	assert.False(t, err.Retryable)
	assert.False(t, err.Timestamp.IsZero())
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewDraftPersistFailedError("u-1", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)

	wrapped := fmt.Errorf("autosave: %w", err)
	stdErr, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeDraftPersistFailed, stdErr.Code)
	assert.True(t, HasCode(wrapped, ErrCodeDraftPersistFailed))
	assert.False(t, HasCode(wrapped, ErrCodeHydrationFailed))
}

func TestNormalize(t *testing.T) {
	known := NewIndexFailedError("applications", nil)
	assert.Same(t, known, Normalize(fmt.Errorf("wrapped: %w", known)))

	unknown := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, unknown.Code)
	assert.Equal(t, "boom", unknown.Details)
	assert.False(t, unknown.Retryable)
}

// ==========================
// BPMN conversion
// ==========================

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"validation is a business error", NewApplicationValidationFailedError("missing fields"), "APPLICATION_VALIDATION_FAILED", 0},
		{"database errors retry three times", NewDatabaseConnectionFailedError(stderrors.New("dial")), "DATABASE_CONNECTION_FAILED", 3},
		{"identity lookups retry twice", NewIdentityLookupFailedError("u-1", nil), "IDENTITY_LOOKUP_FAILED", 2},
		{"unmapped codes pass through", NewUploadRejectedError("too large"), "UPLOAD_REJECTED", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_NonRetryableOverridesCode(t *testing.T) {
	err := NewIndexFailedError("applications", nil)
	err.Retryable = false
	assert.Equal(t, 0, ConvertToBPMNError(err).Retries)
}

func TestToErrorVariables_IncludesMetadata(t *testing.T) {
	err := NewApplicationAlreadySubmittedError("u-9").WithMetadata("applicantId", "u-9")
	vars := ConvertToBPMNError(err).ToErrorVariables()

	assert.Equal(t, "APPLICATION_ALREADY_SUBMITTED", vars["errorCode"])
	assert.Equal(t, "u-9", vars["applicantId"])
	assert.Equal(t, false, vars["retryable"])
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "DRAFT", GetErrorCategory(ErrCodeHydrationFailed))
	assert.Equal(t, "UPLOAD", GetErrorCategory(ErrCodeUploadFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeQuestionsLoadFailed))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeIndexFailed))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeNotificationSendFailed))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeIdentityLookupFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidJobInput))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeDraftPersistFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeApplicationAlreadySubmitted))
}
