// Package perr defines Privarion's error taxonomy. Every
// component returns one of these codes so callers can branch on failure
// class without string-matching error messages.
package perr

import "fmt"

// Code identifies an error class.
type Code string

const (
	// Configuration.
	CodeInvalidConfiguration Code = "InvalidConfiguration"
	CodeInvalidRequest       Code = "InvalidRequest"

	// Capacity / admission.
	CodeMaxSpacesExceeded  Code = "MaxSpacesExceeded"
	CodeSystemOverloaded   Code = "SystemOverloaded"
	CodeDenied             Code = "Denied"
	CodeCapacityExceeded   Code = "CapacityExceeded"

	// Privilege.
	CodeAdminPrivilegesRequired Code = "AdminPrivilegesRequired"
	CodeAccessDenied            Code = "AccessDenied"
	CodeWriteNotSupported       Code = "WriteNotSupported"

	// Not found.
	CodeEphemeralSpaceNotFound Code = "EphemeralSpaceNotFound"
	CodeSnapshotNotFound       Code = "SnapshotNotFound"
	CodeGrantNotFound          Code = "GrantNotFound"
	CodeRollbackPointNotFound  Code = "RollbackPointNotFound"
	CodeRuleNotFound           Code = "RuleNotFound"

	// Integrity.
	CodeCorruptedData        Code = "CorruptedData"
	CodeInvalidRollbackPoint Code = "InvalidRollbackPoint"
	CodeRollbackDataCorrupted Code = "RollbackDataCorrupted"

	// External operation.
	CodeSnapshotCreationFailed  Code = "SnapshotCreationFailed"
	CodeSnapshotDeletionFailed  Code = "SnapshotDeletionFailed"
	CodeMountOperationFailed    Code = "MountOperationFailed"
	CodeUnmountOperationFailed  Code = "UnmountOperationFailed"
	CodeRestoreFailed           Code = "RestoreFailed"
	CodeProcessLaunchFailed     Code = "ProcessLaunchFailed"
	CodeProcessTerminationFailed Code = "ProcessTerminationFailed"
	CodeWriteFailed             Code = "WriteFailed"

	// Validation.
	CodeInvalidIdentifierFormat Code = "InvalidIdentifierFormat"
	CodeInvalidDuration         Code = "InvalidDuration"
	CodeInvalidBundleIdentifier Code = "InvalidBundleIdentifier"
	CodeInvalidServiceName      Code = "InvalidServiceName"
	CodeInvalidPattern          Code = "InvalidPattern"

	// Security.
	CodeSecurityViolation          Code = "SecurityViolation"
	CodeUnauthorizedRollbackAttempt Code = "UnauthorizedRollbackAttempt"

	// Application-specific not-found/not-supported used by the launcher.
	CodeApplicationNotFound       Code = "ApplicationNotFound"
	CodeApplicationNotExecutable  Code = "ApplicationNotExecutable"
	CodeUnsupported               Code = "Unsupported"
)

// Error is Privarion's structured error type. It carries a stable Code, a
// human-readable Message, and the offending identifier where applicable
// (a space id, grant id, bundle id, rollback id, ...).
type Error struct {
	Code    Code
	Message string
	ID      string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no offending identifier.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithID creates an Error carrying the offending identifier.
func WithID(code Code, message, id string) *Error {
	return &Error{Code: code, Message: message, ID: id}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(code Code, message string, id string, err error) *Error {
	return &Error{Code: code, Message: message, ID: id, Err: err}
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var pe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			pe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return pe != nil && pe.Code == code
}
