package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks input rejected before any store call.
	ErrValidation = errors.New("validation failed")
	// ErrMissingReference marks a reference to an entity that does not exist.
	ErrMissingReference = errors.New("missing reference")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Reference points at one entity by kind and id.
type Reference struct {
	Field string
	Kind  Kind
	ID    string
}

// MissingReferenceError lists every reference that did not resolve.
type MissingReferenceError struct {
	Missing []Reference
}

func (e *MissingReferenceError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, ref := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s=%s not found in %s", ref.Field, ref.ID, ref.Kind))
	}
	return "missing reference: " + strings.Join(parts, ", ")
}

func (e *MissingReferenceError) Unwrap() error { return ErrMissingReference }
