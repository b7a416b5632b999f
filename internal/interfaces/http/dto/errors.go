package dto

import "net/http"

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
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when a guarded write loses its race
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeMatchAmbiguous is used when several records satisfy a match at
	// the same confidence tier and none may be chosen
	ErrCodeMatchAmbiguous = "ERR_MATCH_AMBIGUOUS"
	// ErrCodeDataIntegrity is used when stored data violates an integrity
	// expectation the operation relies on
	ErrCodeDataIntegrity = "ERR_DATA_INTEGRITY"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeTooManyRequests is an alias for rate limiting
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors
	ErrCodeInvalidState:   http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:   http.StatusUnprocessableEntity,
	ErrCodeMatchAmbiguous: http.StatusConflict,
	ErrCodeDataIntegrity:  http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to the standardized HTTP
// codes. Every code the domain layer emits must appear here: an unmapped
// code falls through GetHTTPStatus as a 500, which is never what a
// validation failure should look like.
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"CONFLICT":             ErrCodeConflict,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"MATCH_AMBIGUOUS":      ErrCodeMatchAmbiguous,
	"DATA_INTEGRITY":       ErrCodeDataIntegrity,
	"INVALID_STATE":        ErrCodeInvalidState,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,

	// Identity resolution and merge queue
	"INVALID_INPUT":      ErrCodeInvalidInput,
	"INVALID_CANDIDATE":  ErrCodeInvalidInput,
	"INVALID_IDENTITY":   ErrCodeInvalidInput,
	"INVALID_MERGE":      ErrCodeInvalidInput,
	"INVALID_PAIR":       ErrCodeInvalidInput,
	"INVALID_MASTER":     ErrCodeInvalidInput,
	"INVALID_CONFIDENCE": ErrCodeInvalidInput,
	"INVALID_SOURCE":     ErrCodeInvalidInput,
	"INVALID_STATUS":     ErrCodeInvalidInput,

	// Orders and distribution records
	"INVALID_ORDER":        ErrCodeInvalidInput,
	"INVALID_ORDER_NUMBER": ErrCodeInvalidInput,
	"INVALID_ORDER_DATE":   ErrCodeInvalidInput,
	"INVALID_EXTERNAL_KEY": ErrCodeInvalidInput,
	"INVALID_QUANTITY":     ErrCodeInvalidInput,
	"INVALID_SKU":          ErrCodeInvalidInput,

	// Lot references and ledger
	"INVALID_LOT_LABEL":    ErrCodeInvalidInput,
	"INVALID_LOT_YEAR":     ErrCodeInvalidInput,
	"INVALID_LOT_QUANTITY": ErrCodeInvalidInput,
	"INVALID_WINDOW":       ErrCodeInvalidInput,
	"NO_SNAPSHOT_SOURCE":   ErrCodeInvalidState,

	// Ingestion runs
	"INVALID_RUN_KIND":   ErrCodeInvalidInput,
	"INVALID_TOTAL_ROWS": ErrCodeInvalidInput,
	"INVALID_FILE":       ErrCodeInvalidInput,
	"INVALID_FILE_SIZE":  ErrCodeInvalidInput,
	"EMPTY_FILE":         ErrCodeValidation,
	"MISSING_COLUMNS":    ErrCodeValidation,
	"TOO_MANY_ROWS":      ErrCodeValidation,
	"NO_ERRORS":          ErrCodeNotFound,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
