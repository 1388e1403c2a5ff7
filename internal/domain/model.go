package domain

import (
	"errors"
	"fmt"
)

const MaxListLimit = 100

var (
	ErrReportNotFound       = errors.New("report not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrValidation           = errors.New("validation failed")
	ErrAuditWriteFailure    = errors.New("audit write failed")
	ErrConcurrentUpdate     = errors.New("report was modified concurrently")
	ErrForbidden            = errors.New("action not permitted for role")
)

// ValidationError reports a malformed field in an incoming payload.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError is returned when a role may not move a report between two statuses.
type TransitionError struct {
	Role Role
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("role %q cannot move report from %q to %q", e.Role, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}

// Actor is the caller on whose behalf an operation runs. A nil UserID means
// the operation is system-initiated.
type Actor struct {
	UserID *string
	Role   Role
}

func SystemActor() Actor {
	return Actor{Role: RoleAdmin}
}
