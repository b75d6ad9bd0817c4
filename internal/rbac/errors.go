package rbac

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound                   = errors.New("not found")
	ErrDuplicateID                = errors.New("duplicate id")
	ErrSystemRoleImmutable        = errors.New("system role immutable")
	ErrRoleInUse                  = errors.New("role in use")
	ErrHierarchyViolation         = errors.New("hierarchy violation")
	ErrQuotaExceeded              = errors.New("quota exceeded")
	ErrCapabilityDenied           = errors.New("capability denied")
	ErrCycleDetected              = errors.New("cycle detected")
	ErrInvalidLevel               = errors.New("invalid level")
	ErrIncompletePermissionMatrix = errors.New("incomplete permission matrix")
	ErrInvalidStatus              = errors.New("invalid status")
	ErrVersionConflict            = errors.New("version conflict")
	ErrInvalidDefinition          = errors.New("invalid definition")
)

var hints = map[error]string{
	ErrNotFound:                   "check the identifier and try again",
	ErrDuplicateID:                "choose a different identifier",
	ErrSystemRoleImmutable:        "system roles cannot be changed; create a custom role instead",
	ErrRoleInUse:                  "reassign or deactivate the admins holding this role first",
	ErrHierarchyViolation:         "ask a higher-level admin to perform this action",
	ErrQuotaExceeded:              "ask a higher-level admin to raise your limit or reassign one of your sub-users",
	ErrCapabilityDenied:           "ask a higher-level admin to grant this capability",
	ErrCycleDetected:              "pick a manager outside this admin's reporting chain",
	ErrInvalidLevel:               "use a level between 1 and 100",
	ErrIncompletePermissionMatrix: "declare every resource module in the permission matrix",
	ErrInvalidStatus:              "use one of active, inactive, suspended or locked",
	ErrVersionConflict:            "reload the record and retry",
	ErrInvalidDefinition:          "fix the rejected fields and resubmit",
}

// Error is a typed failure returned by store and manager operations.
type Error struct {
	Kind    error
	Message string
	Hint    string
}

// Newf builds an Error of the given kind with the kind's default remediation hint.
func Newf(kind error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Hint:    hints[kind],
	}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// UserMessage renders the error for display, including the remediation hint.
func (e *Error) UserMessage() string {
	if e.Hint == "" {
		return e.Error()
	}
	return e.Error() + " (" + e.Hint + ")"
}

// HintFor returns the remediation hint carried by err, if any.
func HintFor(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// Retryable reports whether retrying the failed operation could succeed without a
// privilege or data change. Authorization and validation failures are terminal.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	return !errors.As(err, &e)
}
