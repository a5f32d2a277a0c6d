// Package federr defines the error taxonomy for the federation flows.
//
// Every failure surfaced by the core is a *Error carrying a class, the step
// that failed, and the underlying provider error. Only transport-class
// failures are retryable; retry policy belongs to the caller, never to the
// flow itself.
package federr

import (
	"errors"
	"fmt"
)

// Error classes.
const (
	// ClassConfiguration marks missing or contradictory settings for the
	// selected flow. Fatal at startup.
	ClassConfiguration = "configuration"

	// ClassAssertionDecode marks a malformed or incomplete token payload.
	ClassAssertionDecode = "assertion_decode"

	// ClassAuthentication marks rejected credentials or authorization codes.
	ClassAuthentication = "authentication"

	// ClassAuthorization marks a rejected assume-role call.
	ClassAuthorization = "authorization"

	// ClassTransport marks a network or timeout failure on an outbound call.
	// The only retryable class.
	ClassTransport = "transport"
)

// Error is a classified federation failure.
type Error struct {
	// Class is one of the Class* constants.
	Class string

	// Step names the operation that failed, e.g. "assume-role-scoped".
	Step string

	// Message is the human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Class, e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Class, e.Step, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error.
func New(class, step, message string, cause error) *Error {
	return &Error{Class: class, Step: step, Message: message, Cause: cause}
}

// Configuration creates a configuration-class error.
func Configuration(step, message string) *Error {
	return New(ClassConfiguration, step, message, nil)
}

// AssertionDecode creates an assertion-decode-class error.
func AssertionDecode(step, message string, cause error) *Error {
	return New(ClassAssertionDecode, step, message, cause)
}

// Authentication creates an authentication-class error.
func Authentication(step, message string, cause error) *Error {
	return New(ClassAuthentication, step, message, cause)
}

// Authorization creates an authorization-class error.
func Authorization(step, message string, cause error) *Error {
	return New(ClassAuthorization, step, message, cause)
}

// Transport creates a transport-class error.
func Transport(step, message string, cause error) *Error {
	return New(ClassTransport, step, message, cause)
}

// ClassOf returns the class of err, or "" when err is not a *Error.
func ClassOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}

// Is reports whether err is a *Error of the given class.
func Is(err error, class string) bool {
	return ClassOf(err) == class
}

// IsRetryable reports whether the caller may retry the failed attempt.
// Only transport failures qualify; a stale code or assertion cannot
// succeed on retry.
func IsRetryable(err error) bool {
	return Is(err, ClassTransport)
}
