/*
errors.go - Business error taxonomy for the settlement engine

PURPOSE:
  Every expected failure in the engine is one of a small closed set of
  named codes. Callers branch on the code; only infrastructure failures
  (store unavailable, deadlock) propagate as plain errors and roll the
  surrounding transaction back.

ERROR CATEGORIES:
  1. Lookup failures   - session/tutor/adjustment not found
  2. State guards      - wrong status, locked period, already voided
  3. Generation guards - week already generated, pending sessions

USAGE:
  if err := svc.Approve(ctx, id, actor); err != nil {
      switch engine.CodeOf(err) {
      case engine.CodePayPeriodLocked:
          ...
      }
  }

SEE ALSO:
  - approval/service.go: Produces most of these codes
  - api/handlers.go:     Maps codes to HTTP statuses
*/
package engine

import (
	"errors"
	"fmt"
)

// Code names one business-rule failure. The set is closed; new behavior
// means a new code, never an overloaded one.
type Code string

const (
	CodeSessionNotFound          Code = "session_not_found"
	CodeTutorNotFound            Code = "tutor_not_found"
	CodeTutorNotActive           Code = "tutor_not_active"
	CodePayPeriodLocked          Code = "pay_period_locked"
	CodeOnlySubmittedApprovable  Code = "only_submitted_approvable"
	CodeOnlySubmittedRejectable  Code = "only_submitted_rejectable"
	CodeInvoicesAlreadyGenerated Code = "invoices_already_generated"
	CodePendingSessions          Code = "pending_sessions"
	CodeAdjustmentNotFound       Code = "adjustment_not_found"
	CodeAdjustmentAlreadyVoided  Code = "adjustment_already_voided"
	CodeRelatedSessionInvalid    Code = "related_session_invalid"
	CodeInternal                 Code = "internal_error"
)

// Error is a business-rule failure carrying its code. It is expected under
// normal concurrent use and must not abort bulk batches.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Err creates a business error with just a code.
func Err(code Code) *Error { return &Error{Code: code} }

// Errf creates a business error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the business code from an error chain. Infrastructure
// errors map to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsBusiness reports whether the error is an expected business-rule failure
// rather than an infrastructure fault.
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeSessionNotFound, CodeTutorNotFound, CodeAdjustmentNotFound:
		return true
	}
	return false
}
