package app

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown work ids, lock paths, targets and agents.
	ErrNotFound = errors.New("not found")
	// ErrNoAgent is returned when an operation needs a registered caller and none resolves.
	ErrNoAgent = errors.New("no agent registered for caller; call join_workspace first")
)

// Reason is a machine-readable cause for a denied operation.
type Reason string

const (
	ReasonLockHeld          Reason = "lock_held"
	ReasonNotHolder         Reason = "not_holder"
	ReasonNotPending        Reason = "not_pending"
	ReasonWrongRole         Reason = "wrong_role"
	ReasonBackendIncomplete Reason = "backend_incomplete"
	ReasonAlreadyCompleted  Reason = "already_completed"
)

// DeniedError reports an expected, non-fatal refusal by policy.
type DeniedError struct {
	Reason      Reason
	Message     string
	Holder      string // set for lock denials
	RemainingMs int64  // set for lock denials
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// IsDenied reports whether err is a DeniedError with the given reason.
func IsDenied(err error, reason Reason) bool {
	var de *DeniedError
	return errors.As(err, &de) && de.Reason == reason
}

func denied(reason Reason, format string, args ...any) *DeniedError {
	return &DeniedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
