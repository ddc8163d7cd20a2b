package shared

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Gateway error taxonomy. Every admission failure maps to exactly one code.
const (
	CodeAuthHeaderMissing     = "AUTH_HEADER_MISSING"
	CodeTokenMalformed        = "TOKEN_MALFORMED"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	CodePayloadMalformed      = "PAYLOAD_MALFORMED"
	CodeAdminNotFound         = "ADMIN_NOT_FOUND"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeSessionMissing        = "SESSION_MISSING"
	CodeSessionInvalid        = "SESSION_INVALID"
	CodeRateLimited           = "RATE_LIMITED"
	CodeRefreshFailed         = "REFRESH_FAILED"
	CodeStoreUnavailable      = "STORE_UNAVAILABLE"

	CodeBadRequest         = "BAD_REQUEST"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeForbidden          = "FORBIDDEN"
)

type AppError struct {
	Code       string
	StatusCode int
	Message    string

	// ExpiredAt is set for TOKEN_EXPIRED only.
	ExpiredAt *time.Time

	// RetryAfter (seconds) is set for RATE_LIMITED only.
	RetryAfter int

	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewAuthHeaderMissing() *AppError {
	return &AppError{Code: CodeAuthHeaderMissing, StatusCode: http.StatusUnauthorized, Message: "Authorization header missing or malformed"}
}

func NewTokenMalformed(err error) *AppError {
	return &AppError{Code: CodeTokenMalformed, StatusCode: http.StatusUnauthorized, Message: "Invalid token", Err: err}
}

func NewTokenExpired(expiredAt time.Time) *AppError {
	return &AppError{Code: CodeTokenExpired, StatusCode: http.StatusUnauthorized, Message: "Token expired", ExpiredAt: &expiredAt}
}

func NewTokenInvalidSignature() *AppError {
	return &AppError{Code: CodeTokenInvalidSignature, StatusCode: http.StatusUnauthorized, Message: "Invalid token signature"}
}

func NewPayloadMalformed() *AppError {
	return &AppError{Code: CodePayloadMalformed, StatusCode: http.StatusForbidden, Message: "Token payload malformed"}
}

func NewAdminNotFound() *AppError {
	return &AppError{Code: CodeAdminNotFound, StatusCode: http.StatusForbidden, Message: "Admin not found or disabled"}
}

func NewUserNotFound() *AppError {
	return &AppError{Code: CodeUserNotFound, StatusCode: http.StatusForbidden, Message: "User not found"}
}

func NewSessionMissing() *AppError {
	return &AppError{Code: CodeSessionMissing, StatusCode: http.StatusUnauthorized, Message: "Session ID required"}
}

func NewSessionInvalid() *AppError {
	return &AppError{Code: CodeSessionInvalid, StatusCode: http.StatusUnauthorized, Message: "Session invalid or expired"}
}

func NewRateLimited(message string, retryAfter int) *AppError {
	if message == "" {
		message = "Too many requests. Please try again later."
	}
	return &AppError{Code: CodeRateLimited, StatusCode: http.StatusTooManyRequests, Message: message, RetryAfter: retryAfter}
}

func NewRefreshFailed(err error) *AppError {
	return &AppError{Code: CodeRefreshFailed, StatusCode: http.StatusUnauthorized, Message: "Token refresh failed", Err: err}
}

func NewStoreUnavailable(err error) *AppError {
	return &AppError{Code: CodeStoreUnavailable, StatusCode: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

func NewBadRequestError(err error, message string) *AppError {
	if message == "" {
		message = "Bad Request"
	}
	return &AppError{Code: CodeBadRequest, StatusCode: http.StatusBadRequest, Message: message, Err: err}
}

func NewInvalidCredentials() *AppError {
	return &AppError{Code: CodeInvalidCredentials, StatusCode: http.StatusUnauthorized, Message: "Invalid email or password"}
}

func NewNotFoundError(message string) *AppError {
	if message == "" {
		message = "Not Found"
	}
	return &AppError{Code: CodeNotFound, StatusCode: http.StatusNotFound, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, StatusCode: http.StatusConflict, Message: message}
}

func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "Forbidden"
	}
	return &AppError{Code: CodeForbidden, StatusCode: http.StatusForbidden, Message: message}
}
