// Package shared contains the error taxonomy used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, checked with errors.Is().
var (
	// ErrValidation - bad user input. Always recoverable: the user is re-prompted.
	ErrValidation = errors.New("validation error")

	// ErrExpired - a one-time code outlived its window. Recoverable only by
	// restarting the registration flow.
	ErrExpired = errors.New("expired")

	// ErrDelivery - an OTP dispatch or an outbound message send failed.
	ErrDelivery = errors.New("delivery failure")

	// ErrDataProvider - the attendance provider errored or returned nothing.
	ErrDataProvider = errors.New("data provider failure")

	// ErrStorage - persistence I/O failed.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound - lookup by key found nothing.
	ErrNotFound = errors.New("entity not found")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "student", "otp", "attendance"
	Op      string // operation that failed, e.g. "Upsert", "Verify"
	Kind    error  // base kind for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Student domain errors.
var (
	ErrStudentNotFound           = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidRegistrationNumber = NewDomainError("student", "Validate", ErrValidation, "invalid registration number")
	ErrInvalidContact            = NewDomainError("student", "Validate", ErrValidation, "invalid contact")
	ErrInvalidDepartment         = NewDomainError("student", "Validate", ErrValidation, "invalid department")
	ErrInvalidYear               = NewDomainError("student", "Validate", ErrValidation, "invalid year")
	ErrInvalidSessionID          = NewDomainError("student", "Validate", ErrValidation, "invalid session id")
)

// OTP domain errors.
var (
	ErrOtpNotIssued = NewDomainError("otp", "Verify", ErrExpired, "no live code for session")
	ErrOtpExpired   = NewDomainError("otp", "Verify", ErrExpired, "code expired")
	ErrOtpMismatch  = NewDomainError("otp", "Verify", ErrValidation, "code does not match")
)

// Attendance domain errors.
var (
	ErrNoAttendanceData = NewDomainError("attendance", "Fetch", ErrDataProvider, "provider returned no attendance")
	ErrSnapshotNotFound = NewDomainError("attendance", "GetSnapshot", ErrNotFound, "snapshot not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsExpired checks if the error is an expiry error.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

// IsDelivery checks if the error is a delivery failure.
func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

// IsDataProvider checks if the error came from the attendance provider.
func IsDataProvider(err error) bool {
	return errors.Is(err, ErrDataProvider)
}

// IsStorage checks if the error is a persistence failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
