package models

import (
	"encoding"
	"fmt"
	"strings"
)

// Relationship is the kind of a concept edge. The string value is the
// persisted tag.
type Relationship string

const (
	// RelParent on (A, B) means A is a child of B.
	RelParent Relationship = "parent"
	// RelPrerequisite on (A, B) means B must be understood before A.
	RelPrerequisite Relationship = "prerequisite"
	// RelRelated is symmetric; it is stored once and queried both ways.
	RelRelated Relationship = "related"
)

// Relationships lists every relationship kind in display order.
var Relationships = []Relationship{RelParent, RelPrerequisite, RelRelated}

var (
	_ fmt.Stringer             = Relationship("")
	_ encoding.TextMarshaler   = Relationship("")
	_ encoding.TextUnmarshaler = (*Relationship)(nil)
)

// ParseRelationship accepts a persisted tag, case-insensitively.
func ParseRelationship(s string) (Relationship, error) {
	switch r := Relationship(strings.ToLower(strings.TrimSpace(s))); r {
	case RelParent, RelPrerequisite, RelRelated:
		return r, nil
	}
	return "", fmt.Errorf("%w: relationship %q", ErrUnknownTag, s)
}

func (r Relationship) String() string { return string(r) }

func (r Relationship) MarshalText() ([]byte, error) {
	if _, err := ParseRelationship(string(r)); err != nil {
		return nil, err
	}
	return []byte(r), nil
}

func (r *Relationship) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationship(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ReviewStatus is the lifecycle state of a review. Pending is the only
// non-terminal state.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewCompleted ReviewStatus = "completed"
	ReviewSkipped   ReviewStatus = "skipped"
)

var (
	_ fmt.Stringer             = ReviewStatus("")
	_ encoding.TextMarshaler   = ReviewStatus("")
	_ encoding.TextUnmarshaler = (*ReviewStatus)(nil)
)

func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReviewPending, ReviewCompleted, ReviewSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: review status %q", ErrUnknownTag, s)
}

func (s ReviewStatus) String() string { return string(s) }

func (s ReviewStatus) MarshalText() ([]byte, error) {
	if _, err := ParseReviewStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (s *ReviewStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseReviewStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
