package dto

import (
	"errors"
	"net/http"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when the operator token is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeBindingConflict is used when a remote id is already bound
	ErrCodeBindingConflict = "ERR_BINDING_CONFLICT"
	// ErrCodeLockBusy is used when the record is locked by a running sync
	ErrCodeLockBusy = "ERR_LOCK_BUSY"
)

// State error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeUnsupportedEntityType is used when no mapping exists for an entity type
	ErrCodeUnsupportedEntityType = "ERR_UNSUPPORTED_ENTITY_TYPE"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Remote directory error codes
const (
	// ErrCodeRemoteUnavailable is used when the remote directory cannot be reached
	ErrCodeRemoteUnavailable = "ERR_REMOTE_UNAVAILABLE"
	// ErrCodeRemoteRejected is used when the remote refuses a payload
	ErrCodeRemoteRejected = "ERR_REMOTE_REJECTED"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeBindingConflict:     http.StatusConflict,
	ErrCodeLockBusy:            http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeInvalidInput:          http.StatusBadRequest,
	ErrCodeInvalidJSON:           http.StatusBadRequest,
	ErrCodeUnsupportedEntityType: http.StatusBadRequest,
	ErrCodeRequestTooLarge:       http.StatusRequestEntityTooLarge,

	ErrCodeRemoteUnavailable: http.StatusBadGateway,
	ErrCodeRemoteRejected:    http.StatusUnprocessableEntity,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps shared.DomainError codes to API codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// syncErrorCodes maps integration sentinels to API codes, checked in order
var syncErrorCodes = []struct {
	err  error
	code string
}{
	{integration.ErrRecordNotFound, ErrCodeNotFound},
	{integration.ErrJobNotFound, ErrCodeNotFound},
	{integration.ErrBindingNotFound, ErrCodeNotFound},
	{integration.ErrRemoteNotFound, ErrCodeNotFound},
	{integration.ErrBindingConflict, ErrCodeBindingConflict},
	{integration.ErrLockBusy, ErrCodeLockBusy},
	{integration.ErrLockTimeout, ErrCodeLockBusy},
	{integration.ErrJobInvalidState, ErrCodeInvalidState},
	{integration.ErrUnsupportedEntityType, ErrCodeUnsupportedEntityType},
	{integration.ErrBindingInvalid, ErrCodeInvalidInput},
	{integration.ErrMalformedRepresentation, ErrCodeInvalidInput},
	{integration.ErrRemoteRejected, ErrCodeRemoteRejected},
	{integration.ErrRemoteUnavailable, ErrCodeRemoteUnavailable},
	{integration.ErrRemoteAuthFailed, ErrCodeRemoteUnavailable},
	{integration.ErrRemoteRateLimited, ErrCodeRemoteUnavailable},
}

// ErrorCode derives the API error code for err.
// The second result is false when err is not a known domain or sync error.
func ErrorCode(err error) (string, bool) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return NormalizeErrorCode(domainErr.Code), true
	}
	for _, m := range syncErrorCodes {
		if errors.Is(err, m.err) {
			return m.code, true
		}
	}
	return ErrCodeInternal, false
}
