// Package export dumps the whole knowledge base as a YAML document.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
)

type Document struct {
	ExportedAt    time.Time  `yaml:"exported_at"`
	SchemaVersion int        `yaml:"schema_version"`
	Concepts      []Concept  `yaml:"concepts"`
	Questions     []Question `yaml:"questions"`
}

// Concept lists its outgoing edges by concept name.
type Concept struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Aliases       []string `yaml:"aliases,omitempty"`
	Parents       []string `yaml:"parents,omitempty"`
	Prerequisites []string `yaml:"prerequisites,omitempty"`
	Related       []string `yaml:"related,omitempty"`
}

type Question struct {
	ID           string     `yaml:"id"`
	Prompt       string     `yaml:"prompt"`
	Concept      string     `yaml:"concept,omitempty"`
	Difficulty   *int       `yaml:"difficulty,omitempty"`
	Sources      []string   `yaml:"sources,omitempty"`
	Schedule     Schedule   `yaml:"schedule"`
	NextReviewAt *time.Time `yaml:"next_review_at,omitempty"`
	CreatedAt    time.Time  `yaml:"created_at"`
	Answers      []Answer   `yaml:"answers,omitempty"`
	Reviews      []Review   `yaml:"reviews,omitempty"`
}

type Schedule struct {
	EasinessFactor float64 `yaml:"easiness_factor"`
	Interval       int     `yaml:"interval"`
	Repetitions    int     `yaml:"repetitions"`
}

type Answer struct {
	Version           int       `yaml:"version"`
	Current           bool      `yaml:"current,omitempty"`
	RawNotes          string    `yaml:"raw_notes"`
	SimpleExplanation string    `yaml:"simple_explanation,omitempty"`
	GapsQuestions     string    `yaml:"gaps_questions,omitempty"`
	FinalExplanation  string    `yaml:"final_explanation,omitempty"`
	AnalogiesExamples string    `yaml:"analogies_examples,omitempty"`
	CreatedAt         time.Time `yaml:"created_at"`
}

type Review struct {
	Status       string     `yaml:"status"`
	Version      int        `yaml:"answer_version"`
	ScheduledFor time.Time  `yaml:"scheduled_for"`
	CompletedAt  *time.Time `yaml:"completed_at,omitempty"`
	Grade        *int       `yaml:"grade,omitempty"`
	Recalled     *bool      `yaml:"recalled_from_memory,omitempty"`
	Attempt      string     `yaml:"attempted_explanation,omitempty"`
	Gaps         string     `yaml:"gaps_identified,omitempty"`
	Notes        string     `yaml:"notes,omitempty"`
}

// Build reads everything in one transaction so the document is consistent.
func Build(ctx context.Context, store *sqlite.Client, now time.Time) (*Document, error) {
	doc := &Document{ExportedAt: now.UTC()}
	err := store.WithTx(ctx, func(tx *sqlite.Client) error {
		var err error
		if doc.SchemaVersion, err = tx.SchemaVersion(ctx); err != nil {
			return err
		}

		concepts, err := tx.ListConcepts(ctx)
		if err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		doc.Concepts, err = buildConcepts(concepts, edges)
		if err != nil {
			return err
		}

		names := make(map[string]string, len(concepts))
		for _, c := range concepts {
			names[c.ID] = c.Name
		}

		questions, err := tx.ListQuestions(ctx, models.QuestionFilter{})
		if err != nil {
			return err
		}
		for i := range questions {
			q, err := buildQuestion(ctx, tx, &questions[i], names)
			if err != nil {
				return err
			}
			doc.Questions = append(doc.Questions, q)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build export: %w", err)
	}
	return doc, nil
}

// Write encodes doc as YAML.
func Write(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return enc.Close()
}

// Read decodes a document produced by Write.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &doc, nil
}

func buildConcepts(concepts []models.Concept, edges []models.ConceptEdge) ([]Concept, error) {
	byID := make(map[string]*Concept, len(concepts))
	out := make([]Concept, len(concepts))
	for i, c := range concepts {
		out[i] = Concept{ID: c.ID, Name: c.Name, Description: c.Description, Aliases: nonEmpty(c.Aliases)}
		byID[c.ID] = &out[i]
	}

	for _, e := range edges {
		from, ok := byID[e.FromConceptID]
		to, ok2 := byID[e.ToConceptID]
		if !ok || !ok2 {
			return nil, fmt.Errorf("edge %s -> %s references a missing concept", e.FromConceptID, e.ToConceptID)
		}
		switch e.Relationship {
		case models.RelParent:
			from.Parents = append(from.Parents, to.Name)
		case models.RelPrerequisite:
			from.Prerequisites = append(from.Prerequisites, to.Name)
		case models.RelRelated:
			from.Related = append(from.Related, to.Name)
		}
	}
	return out, nil
}

func buildQuestion(ctx context.Context, tx *sqlite.Client, q *models.Question, names map[string]string) (Question, error) {
	out := Question{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Difficulty: q.Difficulty,
		Sources:    nonEmpty(q.SourceRefs),
		Schedule: Schedule{
			EasinessFactor: q.Schedule.EasinessFactor,
			Interval:       q.Schedule.Interval,
			Repetitions:    q.Schedule.Repetitions,
		},
		NextReviewAt: utc(q.NextReviewAt),
		CreatedAt:    q.CreatedAt.UTC(),
	}
	if q.ConceptID != nil {
		out.Concept = names[*q.ConceptID]
	}

	answers, err := tx.AnswersForQuestion(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	versions := make(map[string]int, len(answers))
	for i, a := range answers {
		n := len(answers) - i
		versions[a.ID] = n
		out.Answers = append(out.Answers, Answer{
			Version:           n,
			Current:           q.CurrentAnswerID != nil && *q.CurrentAnswerID == a.ID,
			RawNotes:          a.RawNotes,
			SimpleExplanation: a.SimpleExplanation,
			GapsQuestions:     a.GapsQuestions,
			FinalExplanation:  a.FinalExplanation,
			AnalogiesExamples: a.AnalogiesExamples,
			CreatedAt:         a.CreatedAt.UTC(),
		})
	}

	reviews, err := tx.ReviewsForQuestion(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	for _, r := range reviews {
		out.Reviews = append(out.Reviews, Review{
			Status:       r.Status.String(),
			Version:      versions[r.AnswerID],
			ScheduledFor: r.ScheduledFor.UTC(),
			CompletedAt:  utc(r.CompletedAt),
			Grade:        r.SelfGrade,
			Recalled:     r.RecalledFromMemory,
			Attempt:      r.AttemptedExplanation,
			Gaps:         r.GapsIdentified,
			Notes:        r.Notes,
		})
	}
	return out, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonEmpty(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return list
}
