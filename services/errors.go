package services

import (
	"errors"
	"net/http"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("requested resource not found")
	ErrDuplicateIssue   = errors.New("similar issue already reported nearby")
	ErrForbidden        = errors.New("forbidden access")
	ErrInvalidOTP       = errors.New("invalid otp")
	ErrOTPExpired       = errors.New("otp has expired")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidOTP) || errors.Is(err, ErrOTPExpired) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicateIssue) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
