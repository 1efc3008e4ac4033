package service

import (
	"errors"
	"fmt"

	"pragrisk/internal/events"
	"pragrisk/internal/models"
)

// MirrorPropagationError marks a degraded success: the store mutation is
// durable but the search index did not take it.
type MirrorPropagationError struct {
	Kind models.Kind
	ID   string
	Op   events.Op
	Err  error
}

func (e *MirrorPropagationError) Error() string {
	return fmt.Sprintf("search index not updated after %s of %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *MirrorPropagationError) Unwrap() error { return e.Err }

// IsDegraded reports whether err only signals a failed index propagation.
func IsDegraded(err error) bool {
	var mpe *MirrorPropagationError
	return errors.As(err, &mpe)
}
