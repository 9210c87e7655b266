package reconcile

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes reconciliation failures.
type ErrorCode string

const (
	// ErrCodeUnresolvedReference indicates a mappedFields entry that names
	// neither a field reconciled in this save nor a persisted field of the
	// form.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeInvalidAttribute indicates a property value of the wrong shape
	// for a supported attribute.
	ErrCodeInvalidAttribute ErrorCode = "INVALID_ATTRIBUTE"
)

// Error is a fatal reconciliation failure. Either kind aborts the save.
type Error struct {
	Code ErrorCode

	// Entity is "field" or "action".
	Entity string

	// Key is the session key of the offending entry.
	Key string

	// Detail names the attribute or mappedFields entry involved.
	Detail string

	Message string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Code, e.Entity, e.Key)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnresolvedReference reports whether err is, or wraps, an unresolved
// mappedFields reference.
func IsUnresolvedReference(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == ErrCodeUnresolvedReference
}

func unresolved(actionKey, mapping string, ref any, why string) *Error {
	return &Error{
		Code:    ErrCodeUnresolvedReference,
		Entity:  "action",
		Key:     actionKey,
		Detail:  "mappedFields." + mapping,
		Message: fmt.Sprintf("reference %v %s", ref, why),
	}
}

func invalidAttribute(entity, key, attr string, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidAttribute,
		Entity:  entity,
		Key:     key,
		Detail:  attr,
		Message: err.Error(),
		Err:     err,
	}
}
