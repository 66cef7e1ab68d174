// Package ledger owns questions and their versioned answers.
//
// A question keeps every answer ever written for it. Snapshot adds a new
// version and repoints the question's current answer; MinorEdit fixes the
// latest version in place. All multi-row changes run in one transaction.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/metrics"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
	"github.com/torenunez/lerni/pkg/logger"
)

const day = 24 * time.Hour

// Invalidator drops cached views of the due set.
type Invalidator interface {
	InvalidateDue(ctx context.Context) error
}

type Ledger struct {
	store *sqlite.Client
	cache Invalidator
}

type Option func(*Ledger)

func WithInvalidator(inv Invalidator) Option {
	return func(l *Ledger) {
		l.cache = inv
	}
}

func New(store *sqlite.Client, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Version is one answer with its display number. The oldest answer is
// version 1.
type Version struct {
	Answer  models.Answer
	Number  int
	Current bool
}

// Create adds a question that is due immediately.
func (l *Ledger) Create(ctx context.Context, prompt string, conceptID *string, now time.Time) (*models.Question, error) {
	var q *models.Question
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		var err error
		q, err = createQuestion(ctx, tx, prompt, conceptID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	created(q)
	l.invalidate(ctx)
	return q, nil
}

// CreateWithAnswer adds a question and its first answer atomically.
func (l *Ledger) CreateWithAnswer(ctx context.Context, prompt string, conceptID *string, fields models.AnswerFields, now time.Time) (*models.Question, *models.Answer, error) {
	var (
		q *models.Question
		a *models.Answer
	)
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		var err error
		if q, err = createQuestion(ctx, tx, prompt, conceptID, now); err != nil {
			return err
		}
		a, err = addVersion(ctx, tx, q, fields, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	created(q)
	metrics.SnapshotsTotal.Inc()
	l.invalidate(ctx)
	return q, a, nil
}

// AttachInitialAnswer writes the first answer of a question that has none.
func (l *Ledger) AttachInitialAnswer(ctx context.Context, questionID string, fields models.AnswerFields, now time.Time) (*models.Answer, error) {
	var a *models.Answer
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		n, err := tx.CountAnswers(ctx, q.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: question %s already has %d answer(s), take a snapshot instead", models.ErrConstraintViolation, q.ID, n)
		}
		a, err = addVersion(ctx, tx, q, fields, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.SnapshotsTotal.Inc()
	l.invalidate(ctx)
	return a, nil
}

// Snapshot records a new answer version and makes it current. It returns
// the answer and its version number.
func (l *Ledger) Snapshot(ctx context.Context, questionID string, fields models.AnswerFields, now time.Time) (*models.Answer, int, error) {
	var (
		a       *models.Answer
		version int
	)
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if a, err = addVersion(ctx, tx, q, fields, now); err != nil {
			return err
		}
		version, err = tx.CountAnswers(ctx, q.ID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.SnapshotsTotal.Inc()
	logger.Info("Answer snapshot recorded",
		zap.String("question_id", questionID),
		zap.String("answer_id", a.ID),
		zap.Int("version", version),
	)
	l.invalidate(ctx)
	return a, version, nil
}

// MinorEdit changes the latest answer in place without adding a version.
func (l *Ledger) MinorEdit(ctx context.Context, questionID string, patch models.AnswerPatch, now time.Time) (*models.Answer, error) {
	var a *models.Answer
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if a, err = tx.LatestAnswer(ctx, q.ID); err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: %s", models.ErrNoAnswer, q.ID)
		}

		patch.Apply(a)
		if strings.TrimSpace(a.RawNotes) == "" {
			return models.ErrEmptyNotes
		}
		if err := tx.UpdateAnswerContent(ctx, a); err != nil {
			return err
		}

		q.UpdatedAt = now
		return tx.UpdateQuestion(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Answer edited", zap.String("question_id", questionID), zap.String("answer_id", a.ID))
	return a, nil
}

// Due lists questions with next_review_at <= asOf, oldest first.
func (l *Ledger) Due(ctx context.Context, asOf time.Time) ([]models.Question, error) {
	return l.store.DueQuestions(ctx, asOf)
}

// DueWithin lists questions becoming due in (asOf, asOf+days]. Questions
// already due are not included.
func (l *Ledger) DueWithin(ctx context.Context, days int, asOf time.Time) ([]models.Question, error) {
	if days < 0 {
		return nil, fmt.Errorf("lookahead must be >= 0 days, got %d", days)
	}
	return l.store.UpcomingQuestions(ctx, asOf, asOf.Add(time.Duration(days)*day))
}

// Assign files a question under a concept.
func (l *Ledger) Assign(ctx context.Context, questionID, conceptID string, now time.Time) (*models.Question, error) {
	return l.reassign(ctx, questionID, &conceptID, now)
}

// Unassign returns a question to the inbox.
func (l *Ledger) Unassign(ctx context.Context, questionID string, now time.Time) (*models.Question, error) {
	return l.reassign(ctx, questionID, nil, now)
}

func (l *Ledger) reassign(ctx context.Context, questionID string, conceptID *string, now time.Time) (*models.Question, error) {
	var q *models.Question
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		var err error
		if q, err = tx.GetQuestion(ctx, questionID); err != nil {
			return err
		}
		if conceptID != nil {
			if _, err := tx.GetConcept(ctx, *conceptID); err != nil {
				return err
			}
		}
		q.ConceptID = conceptID
		q.UpdatedAt = now
		return tx.UpdateQuestion(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateMeta sets the difficulty when non-nil and appends source when it is
// not blank and not already recorded.
func (l *Ledger) UpdateMeta(ctx context.Context, questionID string, difficulty *int, source string, now time.Time) (*models.Question, error) {
	if difficulty != nil && (*difficulty < 1 || *difficulty > 5) {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidDifficulty, *difficulty)
	}
	source = strings.TrimSpace(source)

	var q *models.Question
	err := l.store.WithTx(ctx, func(tx *sqlite.Client) error {
		var err error
		if q, err = tx.GetQuestion(ctx, questionID); err != nil {
			return err
		}
		if difficulty != nil {
			d := *difficulty
			q.Difficulty = &d
		}
		if source != "" && !q.HasSource(source) {
			q.SourceRefs = append(q.SourceRefs, source)
		}
		q.UpdatedAt = now
		return tx.UpdateQuestion(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a question with all its answers and reviews.
func (l *Ledger) Delete(ctx context.Context, questionID string) error {
	removed, err := l.store.DeleteQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if !removed {
		return models.NotFound("question", questionID)
	}

	logger.Info("Question deleted", zap.String("question_id", questionID))
	l.invalidate(ctx)
	return nil
}

// History lists every answer newest first, numbered from the oldest.
func (l *Ledger) History(ctx context.Context, questionID string) ([]Version, error) {
	q, err := l.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	answers, err := l.store.AnswersForQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}

	versions := make([]Version, 0, len(answers))
	for i, a := range answers {
		versions = append(versions, Version{
			Answer:  a,
			Number:  len(answers) - i,
			Current: q.CurrentAnswerID != nil && *q.CurrentAnswerID == a.ID,
		})
	}
	return versions, nil
}

// CurrentAnswer resolves the answer a review of q would show. It returns
// nil for a question without answers.
func (l *Ledger) CurrentAnswer(ctx context.Context, q *models.Question) (*models.Answer, error) {
	return l.store.CurrentAnswer(ctx, q)
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Question, error) {
	return l.store.GetQuestion(ctx, id)
}

// Resolve finds a question by id or unique id prefix.
func (l *Ledger) Resolve(ctx context.Context, ref string) (*models.Question, error) {
	return l.store.ResolveQuestion(ctx, ref)
}

func (l *Ledger) List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error) {
	return l.store.ListQuestions(ctx, filter)
}

func (l *Ledger) Search(ctx context.Context, query string) ([]models.Question, error) {
	return l.store.SearchQuestions(ctx, strings.TrimSpace(query))
}

func (l *Ledger) ForConcept(ctx context.Context, conceptID string) ([]models.Question, error) {
	return l.store.QuestionsForConcept(ctx, conceptID)
}

func (l *Ledger) CountForConcept(ctx context.Context, conceptID string) (int, error) {
	return l.store.CountQuestionsForConcept(ctx, conceptID)
}

// Uncategorized lists the inbox: questions without a concept.
func (l *Ledger) Uncategorized(ctx context.Context) ([]models.Question, error) {
	return l.store.UncategorizedQuestions(ctx)
}

func (l *Ledger) VersionCount(ctx context.Context, questionID string) (int, error) {
	return l.store.CountAnswers(ctx, questionID)
}

func (l *Ledger) invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateDue(ctx); err != nil {
		logger.Warn("Failed to invalidate due cache", zap.Error(err))
	}
}

func createQuestion(ctx context.Context, tx *sqlite.Client, prompt string, conceptID *string, now time.Time) (*models.Question, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, models.ErrEmptyPrompt
	}
	if conceptID != nil {
		if _, err := tx.GetConcept(ctx, *conceptID); err != nil {
			return nil, err
		}
	}

	due := now
	q := &models.Question{
		ID:           uuid.New().String(),
		ConceptID:    conceptID,
		Prompt:       prompt,
		NextReviewAt: &due,
		Schedule:     scheduler.NewState(),
		SourceRefs:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.InsertQuestion(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

// created records a question once its transaction has committed.
func created(q *models.Question) {
	metrics.QuestionsCreated.Inc()
	logger.Info("Question created", zap.String("question_id", q.ID))
}

// addVersion inserts a new answer for q and points q at it.
func addVersion(ctx context.Context, tx *sqlite.Client, q *models.Question, fields models.AnswerFields, now time.Time) (*models.Answer, error) {
	if strings.TrimSpace(fields.RawNotes) == "" {
		return nil, models.ErrEmptyNotes
	}

	a := &models.Answer{
		ID:                uuid.New().String(),
		QuestionID:        q.ID,
		RawNotes:          fields.RawNotes,
		SimpleExplanation: fields.SimpleExplanation,
		GapsQuestions:     fields.GapsQuestions,
		FinalExplanation:  fields.FinalExplanation,
		AnalogiesExamples: fields.AnalogiesExamples,
		CreatedAt:         now,
	}
	if err := tx.InsertAnswer(ctx, a); err != nil {
		return nil, err
	}

	q.CurrentAnswerID = &a.ID
	q.UpdatedAt = now
	if err := tx.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return a, nil
}
