package reconcile

import (
	"errors"
	"fmt"
)

// ErrConcurrentCreate marks a create that lost the race to another actor:
// the existence check said absent, the create call said already exists.
// Callers re-read the object and continue as an update.
var ErrConcurrentCreate = errors.New("resource was created concurrently")

// ValidationError is a local desired-state defect. No device call is made
// once one is detected, and retrying without changing the declaration
// cannot succeed.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// VerificationError is a failed post-condition check: the mutating call
// reported success, but a follow-up read contradicts it.
type VerificationError struct {
	msg string
}

func (e *VerificationError) Error() string { return e.msg }

// Verificationf builds a VerificationError from a format string.
func Verificationf(format string, args ...any) error {
	return &VerificationError{msg: fmt.Sprintf(format, args...)}
}

// IsVerification reports whether err is (or wraps) a VerificationError.
func IsVerification(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
