// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Draft lifecycle
const (
	ErrCodeDraftNotFound      ErrorCode = "DRAFT_NOT_FOUND"
	ErrCodeDraftPersistFailed ErrorCode = "DRAFT_PERSIST_FAILED"
	ErrCodeHydrationFailed    ErrorCode = "HYDRATION_FAILED"
	ErrCodeUploadFailed       ErrorCode = "UPLOAD_FAILED"
	ErrCodeUploadRejected     ErrorCode = "UPLOAD_REJECTED"
)

// Questions and submission
const (
	ErrCodeQuestionsLoadFailed         ErrorCode = "QUESTIONS_LOAD_FAILED"
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeApplicationAlreadySubmitted ErrorCode = "APPLICATION_ALREADY_SUBMITTED"
	ErrCodeSubmissionStartFailed       ErrorCode = "SUBMISSION_START_FAILED"
)

// Infrastructure
const (
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeIndexFailed                   ErrorCode = "INDEX_FAILED"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeIdentityLookupFailed          ErrorCode = "IDENTITY_LOOKUP_FAILED"
	ErrCodeInvalidJobInput               ErrorCode = "INVALID_JOB_INPUT"
	ErrCodeInternal                      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata attaches a key/value pair and returns e.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AsStandardError finds a StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain carries a StandardError with code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewDraftNotFoundError(collection, applicantID string) *StandardError {
	return newError(ErrCodeDraftNotFound, "Applicant draft not found",
		fmt.Sprintf("collection: %s, applicantId: %s", collection, applicantID), false, nil)
}

// NewDraftPersistFailedError is retryable: autosave tries again on the next tick.
func NewDraftPersistFailedError(applicantID string, err error) *StandardError {
	return newError(ErrCodeDraftPersistFailed, "Failed to persist applicant draft",
		fmt.Sprintf("applicantId: %s, error: %s", applicantID, detailsOf(err)), true, err)
}

func NewHydrationFailedError(applicantID string, err error) *StandardError {
	return newError(ErrCodeHydrationFailed, "Failed to load applicant draft",
		fmt.Sprintf("applicantId: %s, error: %s", applicantID, detailsOf(err)), true, err)
}

func NewUploadFailedError(err error) *StandardError {
	return newError(ErrCodeUploadFailed, "File upload failed", detailsOf(err), true, err)
}

func NewUploadRejectedError(details string) *StandardError {
	return newError(ErrCodeUploadRejected, "File rejected", details, false, nil)
}

func NewQuestionsLoadFailedError(eventID string, err error) *StandardError {
	return newError(ErrCodeQuestionsLoadFailed, "Failed to load application questions",
		fmt.Sprintf("eventId: %s, error: %s", eventID, detailsOf(err)), true, err)
}

func NewApplicationValidationFailedError(details string) *StandardError {
	return newError(ErrCodeApplicationValidationFailed, "Application data validation failed", details, false, nil)
}

func NewApplicationAlreadySubmittedError(applicantID string) *StandardError {
	return newError(ErrCodeApplicationAlreadySubmitted, "Application already submitted",
		fmt.Sprintf("applicantId: %s", applicantID), false, nil)
}

func NewSubmissionStartFailedError(err error) *StandardError {
	return newError(ErrCodeSubmissionStartFailed, "Failed to start submission workflow", detailsOf(err), true, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", detailsOf(err), true, err)
}

func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", detailsOf(err), true, err)
}

func NewIndexFailedError(indexName string, err error) *StandardError {
	return newError(ErrCodeIndexFailed, "Failed to index application",
		fmt.Sprintf("index: %s, error: %s", indexName, detailsOf(err)), true, err)
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, detailsOf(err)), true, err)
}

func NewIdentityLookupFailedError(uid string, err error) *StandardError {
	return newError(ErrCodeIdentityLookupFailed, "Identity provider lookup failed",
		fmt.Sprintf("uid: %s, error: %s", uid, detailsOf(err)), true, err)
}

func NewInvalidJobInputError(err error) *StandardError {
	return newError(ErrCodeInvalidJobInput, "Invalid job variables", detailsOf(err), false, err)
}

// ==========================
// 4. BPMN mapping and retries
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeDraftNotFound:                 "DRAFT_NOT_FOUND",
	ErrCodeApplicationValidationFailed:   "APPLICATION_VALIDATION_FAILED",
	ErrCodeApplicationAlreadySubmitted:   "APPLICATION_ALREADY_SUBMITTED",
	ErrCodeQuestionsLoadFailed:           "QUESTIONS_LOAD_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeIndexFailed:                   "INDEX_FAILED",
	ErrCodeNotificationSendFailed:        "NOTIFICATION_SEND_FAILED",
	ErrCodeIdentityLookupFailed:          "IDENTITY_LOOKUP_FAILED",
	ErrCodeInvalidJobInput:               "INVALID_JOB_INPUT",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeIndexFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeQuestionsLoadFailed,
		ErrCodeDraftPersistFailed:
		return 3

	case ErrCodeIdentityLookupFailed,
		ErrCodeHydrationFailed,
		ErrCodeUploadFailed,
		ErrCodeSubmissionStartFailed:
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DRAFT") || strings.Contains(codeStr, "HYDRATION"):
		return "DRAFT"
	case strings.Contains(codeStr, "UPLOAD"):
		return "UPLOAD"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUESTIONS"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "IDENTITY"):
		return "AUTH"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "SUBMIT"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
