package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound              ErrorCode = "NOT_FOUND"
	ErrForbidden             ErrorCode = "FORBIDDEN"
	ErrInvalidState          ErrorCode = "INVALID_STATE"
	ErrInsufficientFunds     ErrorCode = "INSUFFICIENT_FUNDS"
	ErrSelfTransfer          ErrorCode = "SELF_TRANSFER"
	ErrConflict              ErrorCode = "CONFLICT"
	ErrDuplicateNumber       ErrorCode = "DUPLICATE_NUMBER"
	ErrBadRequest            ErrorCode = "BAD_REQUEST"
	ErrInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrProvisioningExhausted ErrorCode = "PROVISIONING_EXHAUSTED"
	ErrUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrInternalServer        ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf extracts the taxonomy code from err, or ErrInternalServer when err
// is not an APIError.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// IsConflict reports whether err is a retryable optimistic-lock conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrConflict
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrForbidden:
			return http.StatusForbidden
		case ErrUnauthorized:
			return http.StatusUnauthorized
		case ErrConflict, ErrDuplicateNumber:
			return http.StatusConflict
		case ErrInvalidState, ErrSelfTransfer:
			return http.StatusUnprocessableEntity
		case ErrInsufficientFunds:
			return http.StatusUnprocessableEntity
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrProvisioningExhausted, ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
