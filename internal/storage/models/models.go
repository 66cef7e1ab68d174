package models

import (
	"time"

	"github.com/torenunez/lerni/internal/scheduler"
)

// IDLength is the length of a canonical textual UUID. References shorter
// than this are treated as prefixes.
const IDLength = 36

type Concept struct {
	ID          string
	Name        string
	Aliases     []string
	Description string
	CreatedAt   time.Time
}

type ConceptEdge struct {
	FromConceptID string
	ToConceptID   string
	Relationship  Relationship
}

type Question struct {
	ID              string
	ConceptID       *string
	Prompt          string
	CurrentAnswerID *string
	NextReviewAt    *time.Time
	Schedule        scheduler.State
	Difficulty      *int
	SourceRefs      []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Uncategorized reports whether the question sits in the inbox.
func (q *Question) Uncategorized() bool {
	return q.ConceptID == nil
}

// DueAt reports whether the question should be reviewed at asOf.
func (q *Question) DueAt(asOf time.Time) bool {
	return q.NextReviewAt != nil && !q.NextReviewAt.After(asOf)
}

func (q *Question) HasSource(ref string) bool {
	for _, s := range q.SourceRefs {
		if s == ref {
			return true
		}
	}
	return false
}

// Answer is one version of the explanation for a question. Empty optional
// fields are stored as NULL.
type Answer struct {
	ID                string
	QuestionID        string
	RawNotes          string
	SimpleExplanation string
	GapsQuestions     string
	FinalExplanation  string
	AnalogiesExamples string
	CreatedAt         time.Time
}

// Explanation is the text shown when the learner needs to see their answer.
func (a *Answer) Explanation() string {
	if a.SimpleExplanation != "" {
		return a.SimpleExplanation
	}
	return a.RawNotes
}

// Fields returns the content of a, for pre-filling a new version.
func (a *Answer) Fields() AnswerFields {
	return AnswerFields{
		RawNotes:          a.RawNotes,
		SimpleExplanation: a.SimpleExplanation,
		GapsQuestions:     a.GapsQuestions,
		FinalExplanation:  a.FinalExplanation,
		AnalogiesExamples: a.AnalogiesExamples,
	}
}

type Review struct {
	ID                   string
	QuestionID           string
	AnswerID             string
	ScheduledFor         time.Time
	CompletedAt          *time.Time
	Status               ReviewStatus
	SelfGrade            *int
	AttemptedExplanation string
	RecalledFromMemory   *bool
	GapsIdentified       string
	Notes                string
	AISessionID          *string
}

func (r *Review) Pending() bool {
	return r.Status == ReviewPending
}

// AnswerFields is the content captured for a new answer version.
type AnswerFields struct {
	RawNotes          string
	SimpleExplanation string
	GapsQuestions     string
	FinalExplanation  string
	AnalogiesExamples string
}

// AnswerPatch changes selected fields of an existing answer. Nil fields are
// left untouched.
type AnswerPatch struct {
	RawNotes          *string
	SimpleExplanation *string
	GapsQuestions     *string
	FinalExplanation  *string
	AnalogiesExamples *string
}

// Empty reports whether the patch would change nothing.
func (p AnswerPatch) Empty() bool {
	return p.RawNotes == nil && p.SimpleExplanation == nil && p.GapsQuestions == nil &&
		p.FinalExplanation == nil && p.AnalogiesExamples == nil
}

// Apply writes the patch onto a.
func (p AnswerPatch) Apply(a *Answer) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.RawNotes, p.RawNotes)
	set(&a.SimpleExplanation, p.SimpleExplanation)
	set(&a.GapsQuestions, p.GapsQuestions)
	set(&a.FinalExplanation, p.FinalExplanation)
	set(&a.AnalogiesExamples, p.AnalogiesExamples)
}

// Evidence is what the learner reports when completing a review.
type Evidence struct {
	Grade                int
	AttemptedExplanation string
	RecalledFromMemory   *bool
	Gaps                 string
	Notes                string
}

// QuestionFilter narrows a question listing. The zero value lists everything.
type QuestionFilter struct {
	ConceptID     string
	DueOnly       bool
	Uncategorized bool
	AsOf          time.Time
}
