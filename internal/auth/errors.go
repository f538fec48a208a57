package auth

import (
	"errors"
	"net/http"
)

// Error is an identity provider failure with a stable code and user-facing text.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Code }

// Provider errors. Codes follow the auth/<reason> convention clients already map.
var (
	ErrEmailInUse        = &Error{Code: "auth/email-already-in-use", Message: "This email is already registered", Status: http.StatusConflict}
	ErrInvalidEmail      = &Error{Code: "auth/invalid-email", Message: "Please enter a valid email address", Status: http.StatusBadRequest}
	ErrWeakPassword      = &Error{Code: "auth/weak-password", Message: "Password should be at least 6 characters", Status: http.StatusBadRequest}
	ErrInvalidCredential = &Error{Code: "auth/invalid-credential", Message: "Invalid email or password", Status: http.StatusUnauthorized}
)

// Describe returns the HTTP status, code and user-facing text for err.
// Unknown errors get a generic message.
func Describe(err error) (int, string, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message
	}
	return http.StatusInternalServerError, "auth/internal", "An error occurred. Please try again."
}
