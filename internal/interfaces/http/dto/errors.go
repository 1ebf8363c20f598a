package dto

import "net/http"

// Error codes returned by the admin API.
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeUnknown    = "ERR_UNKNOWN"
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeValidation = "ERR_VALIDATION"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"
	ErrCodeTooLarge   = "ERR_REQUEST_TOO_LARGE"
	ErrCodeForbidden  = "ERR_FORBIDDEN"
)

// Auth error codes
const (
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeInvalidToken     = "ERR_INVALID_TOKEN"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenNotYetValid = "ERR_TOKEN_NOT_YET_VALID"
)

// Customs error codes
const (
	ErrCodeClassificationNotFound = "ERR_CLASSIFICATION_NOT_FOUND"
	ErrCodeInvalidClassification  = "ERR_INVALID_CLASSIFICATION"
	ErrCodeInvalidRegime          = "ERR_INVALID_TAX_REGIME"
	ErrCodeInvalidAmount          = "ERR_INVALID_AMOUNT"
	ErrCodeInvalidCountry         = "ERR_INVALID_COUNTRY"
	ErrCodeInvalidCurrency        = "ERR_INVALID_CURRENCY"
	ErrCodeInvalidExchangeRate    = "ERR_INVALID_EXCHANGE_RATE"
	ErrCodeRateUnavailable        = "ERR_EXCHANGE_RATE_UNAVAILABLE"
	ErrCodeBatchRunning           = "ERR_BATCH_ALREADY_RUNNING"
	ErrCodeBatchIdle              = "ERR_BATCH_NOT_RUNNING"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:    http.StatusInternalServerError,
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeConflict:   http.StatusConflict,
	ErrCodeTooLarge:   http.StatusRequestEntityTooLarge,
	ErrCodeForbidden:  http.StatusForbidden,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeInvalidToken:     http.StatusUnauthorized,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenNotYetValid: http.StatusUnauthorized,

	ErrCodeClassificationNotFound: http.StatusNotFound,
	ErrCodeInvalidClassification:  http.StatusUnprocessableEntity,
	ErrCodeInvalidRegime:          http.StatusBadRequest,
	ErrCodeInvalidAmount:          http.StatusBadRequest,
	ErrCodeInvalidCountry:         http.StatusBadRequest,
	ErrCodeInvalidCurrency:        http.StatusBadRequest,
	ErrCodeInvalidExchangeRate:    http.StatusBadGateway,
	ErrCodeRateUnavailable:        http.StatusServiceUnavailable,
	ErrCodeBatchRunning:           http.StatusConflict,
	ErrCodeBatchIdle:              http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps DomainError codes raised by the domain layer to API codes
var domainCodes = map[string]string{
	"NOT_FOUND":                 ErrCodeNotFound,
	"INVALID_INPUT":             ErrCodeBadRequest,
	"INVALID_STATE":             ErrCodeConflict,
	"CLASSIFICATION_NOT_FOUND":  ErrCodeClassificationNotFound,
	"INVALID_CLASSIFICATION":    ErrCodeInvalidClassification,
	"INVALID_TAX_REGIME":        ErrCodeInvalidRegime,
	"INVALID_AMOUNT":            ErrCodeInvalidAmount,
	"INVALID_COUNTRY":           ErrCodeInvalidCountry,
	"INVALID_CURRENCY":          ErrCodeInvalidCurrency,
	"INVALID_EXCHANGE_RATE":     ErrCodeInvalidExchangeRate,
	"EXCHANGE_RATE_UNAVAILABLE": ErrCodeRateUnavailable,
}

// NormalizeErrorCode converts a domain error code to its API form.
// Codes that are already in API form, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}
