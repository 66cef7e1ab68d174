package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means an identifier resolved to no record.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousReference means an ID prefix matched more than one record.
	ErrAmbiguousReference = errors.New("ambiguous reference")

	// ErrDuplicateName means a concept with the same name, ignoring case,
	// already exists.
	ErrDuplicateName = errors.New("duplicate concept name")

	// ErrDuplicateEdge means the (from, to, relationship) triple already exists.
	ErrDuplicateEdge = errors.New("duplicate concept edge")

	// ErrSelfLoop means an edge was requested from a concept to itself.
	ErrSelfLoop = errors.New("concept cannot be linked to itself")

	// ErrConstraintViolation wraps any other integrity failure reported by
	// the store.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUnknownTag means a persisted enum tag could not be parsed.
	ErrUnknownTag = errors.New("unknown tag")

	ErrEmptyName         = errors.New("concept name must not be empty")
	ErrEmptyPrompt       = errors.New("question prompt must not be empty")
	ErrEmptyNotes        = errors.New("answer raw notes must not be empty")
	ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 5")

	// ErrReviewClosed means a completed or skipped review was mutated again.
	ErrReviewClosed = errors.New("review is no longer pending")

	// ErrNoAnswer means a review was started for a question without answers.
	ErrNoAnswer = errors.New("question has no answer")
)

// LookupError reports a failed identifier resolution with enough context
// for a human to correct the input.
type LookupError struct {
	Entity  string
	Ref     string
	Matches int
	Err     error
}

func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrAmbiguousReference) {
		return fmt.Sprintf("ambiguous %s reference %q matches %d records, use a longer prefix", e.Entity, e.Ref, e.Matches)
	}
	return fmt.Sprintf("%s not found: %q", e.Entity, e.Ref)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func NotFound(entity, ref string) error {
	return &LookupError{Entity: entity, Ref: ref, Err: ErrNotFound}
}

func Ambiguous(entity, ref string, matches int) error {
	return &LookupError{Entity: entity, Ref: ref, Matches: matches, Err: ErrAmbiguousReference}
}
