package policy

import (
	"errors"
	"fmt"
)

// ConflictKind classifies why a mutation was rejected.
type ConflictKind string

const (
	// CycleDetected means a role-parent edge would make the hierarchy cyclic.
	CycleDetected ConflictKind = "cycle-detected"
	// DuplicatePermission means an identical grant already exists on the role.
	DuplicatePermission ConflictKind = "duplicate-permission"
	// DuplicateRole means a role with the same name already exists.
	DuplicateRole ConflictKind = "duplicate-role"
	// DuplicateParent means the parent edge already exists.
	DuplicateParent ConflictKind = "duplicate-parent"
	// UnknownRole means the change references a role that does not exist.
	UnknownRole ConflictKind = "unknown-role"
	// UnknownPermission means the grant to revoke does not exist.
	UnknownPermission ConflictKind = "unknown-permission"
	// UnknownOverride means the override to clear does not exist.
	UnknownOverride ConflictKind = "unknown-override"
	// InvalidScope means the scope predicate failed to compile.
	InvalidScope ConflictKind = "invalid-scope"
	// InvalidChange means the change itself is malformed.
	InvalidChange ConflictKind = "invalid-change"
)

// ConflictError is returned when a mutation is rejected at validation time.
// The store is left unchanged; the caller can correct the request and retry.
type ConflictError struct {
	Kind   ConflictKind
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy conflict (%s): %s", e.Kind, e.Detail)
}

func conflict(kind ConflictKind, format string, args ...interface{}) error {
	return &ConflictError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a mutation-time policy conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ConflictOf returns the conflict kind of err, or "" if err is not a conflict.
func ConflictOf(err error) ConflictKind {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
