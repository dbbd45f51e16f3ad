package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Handlers and services use these constants instead of hardcoded strings.
const (
	// Report failures. These are the four outcomes a caller must be able to
	// tell apart when a report cannot be produced.
	ErrCodeDataUnavailable    ErrorCode = "data_unavailable"
	ErrCodeNoNearbyPoint      ErrorCode = "no_nearby_point"
	ErrCodeIncompleteFarmData ErrorCode = "incomplete_farm_data"
	ErrCodeUpstreamTimeout    ErrorCode = "upstream_timeout"

	// Validation (400)
	ErrCodeValidationInvalidLat      ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon      ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField    ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidDate     ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidRiskCode ErrorCode = "validation_invalid_risk_code"
	ErrCodeValidationInvalidJSON     ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Not Found (404)
	ErrCodeNotFoundFarm ErrorCode = "not_found_farm"
	ErrCodeNotFoundUser ErrorCode = "not_found_user"

	// Conflict (409)
	ErrCodeConflictFarmName ErrorCode = "conflict_farm_name_exists"
	ErrCodeConflictPhone    ErrorCode = "conflict_phone_number_exists"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalCorruptData   ErrorCode = "internal_corrupt_geopoint_file"
	ErrCodeUpstreamWeatherAPI    ErrorCode = "upstream_weather_api_error"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamQueue         ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamObjectStorage ErrorCode = "upstream_object_storage_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case c == ErrCodeDataUnavailable:
		return http.StatusServiceUnavailable // 503
	case c == ErrCodeNoNearbyPoint:
		return http.StatusNotFound // 404
	case c == ErrCodeIncompleteFarmData:
		return http.StatusUnprocessableEntity // 422
	case c == ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout // 504
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type.
// All domain and handler errors are expressed as AppError to get consistent
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or the
// empty code if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Recoverable reports whether a batch job may skip the item that produced err
// and continue. The four report failures are always recoverable, as are
// upstream and not-found errors.
func Recoverable(err error) bool {
	code := CodeOf(err)
	switch {
	case code == ErrCodeDataUnavailable,
		code == ErrCodeNoNearbyPoint,
		code == ErrCodeIncompleteFarmData,
		code == ErrCodeUpstreamTimeout:
		return true
	case strings.HasPrefix(string(code), "upstream_"),
		strings.HasPrefix(string(code), "not_found_"):
		return true
	default:
		return false
	}
}

// Retryable reports whether retrying the same call later may succeed.
// Callers bound the number of attempts themselves.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUpstreamTimeout, ErrCodeUpstreamUnavailable, ErrCodeUpstreamRateLimited:
		return true
	default:
		return false
	}
}
