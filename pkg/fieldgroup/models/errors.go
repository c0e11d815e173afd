package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrCycle      = errors.New("group hierarchy cycle")
)

// ValidationError reports a malformed or missing attribute.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateError reports a field or subgroup that is already listed.
type DuplicateError struct {
	List  string
	Entry string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%q is already listed in %s", e.Entry, e.List)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// CycleError reports a parent assignment that would make a group its own ancestor.
type CycleError struct {
	Group  string
	Parent string
}

func (e *CycleError) Error() string {
	if e.Group == e.Parent {
		return fmt.Sprintf("group %q cannot be its own parent", e.Group)
	}
	return fmt.Sprintf("moving group %q under %q would create a cycle", e.Group, e.Parent)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
