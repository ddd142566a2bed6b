package auth

import (
	"errors"
	"fmt"
)

// Code is a structured error code reported by the identity backend.
type Code string

const (
	CodeInvalidEmail        Code = "auth/invalid-email"
	CodeInvalidCredential   Code = "auth/invalid-credential"
	CodeUserNotFound        Code = "auth/user-not-found"
	CodeWrongPassword       Code = "auth/wrong-password"
	CodeEmailAlreadyInUse   Code = "auth/email-already-in-use"
	CodeWeakPassword        Code = "auth/weak-password"
	CodeTooManyRequests     Code = "auth/too-many-requests"
	CodeOperationNotAllowed Code = "auth/operation-not-allowed"
	CodeNetworkRequestFail  Code = "auth/network-request-failed"
	CodeInternal            Code = "auth/internal-error"
)

// BackendError is the structured error returned by identity backends.
type BackendError struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "identity backend error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", msg, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Code)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error { return e.Cause }

// NewBackendError creates a BackendError without a cause.
func NewBackendError(code Code, message string) *BackendError {
	return &BackendError{Code: code, Message: message}
}

// WrapBackendError creates a BackendError that wraps cause.
func WrapBackendError(code Code, message string, cause error) *BackendError {
	return &BackendError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the backend code from err, or empty string.
func CodeOf(err error) Code {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// ErrorKind is the user-facing classification of an identity operation failure.
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindInvalidEmail       ErrorKind = "invalid_email"
	ErrorKindInvalidCredentials ErrorKind = "invalid_credentials"
	ErrorKindEmailAlreadyInUse  ErrorKind = "email_already_in_use"
	ErrorKindUnknown            ErrorKind = "unknown"
)

// User-facing messages for the classified kinds.
const (
	MessageInvalidEmail       = "Invalid e-mail address"
	MessageInvalidCredentials = "Wrong e-mail or password"
	MessageEmailAlreadyInUse  = "This e-mail is already in use"
	MessageUnknown            = "Something went wrong, please try again"
)

// Operation names an identity operation for classification purposes.
type Operation string

const (
	OperationLogin    Operation = "login"
	OperationRegister Operation = "register"
	OperationLogout   Operation = "logout"
)

// Classify maps a backend error to the fixed set of user-facing kinds for op.
// Codes that are meaningless for op fall through to ErrorKindUnknown.
func Classify(op Operation, err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	code := CodeOf(err)
	if code == CodeInvalidEmail && op != OperationLogout {
		return ErrorKindInvalidEmail
	}
	switch op {
	case OperationLogin:
		switch code {
		case CodeInvalidCredential, CodeUserNotFound, CodeWrongPassword:
			return ErrorKindInvalidCredentials
		}
	case OperationRegister:
		if code == CodeEmailAlreadyInUse {
			return ErrorKindEmailAlreadyInUse
		}
	}
	return ErrorKindUnknown
}

// Message returns the user-facing message for kind. Unknown failures carry the
// backend's own message when err wraps a BackendError and MessageUnknown otherwise;
// other error text never reaches the user.
func Message(kind ErrorKind, err error) string {
	switch kind {
	case ErrorKindNone:
		return ""
	case ErrorKindInvalidEmail:
		return MessageInvalidEmail
	case ErrorKindInvalidCredentials:
		return MessageInvalidCredentials
	case ErrorKindEmailAlreadyInUse:
		return MessageEmailAlreadyInUse
	}
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return MessageUnknown
}
