// Package review runs the review state machine. A review is opened PENDING
// against the answer that is current at that moment and is closed exactly
// once, either COMPLETED with a grade or SKIPPED.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/metrics"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
	"github.com/torenunez/lerni/pkg/logger"
)

// SkipDelay is how far a skip pushes the next review.
const SkipDelay = 24 * time.Hour

// Invalidator drops cached views of the due set.
type Invalidator interface {
	InvalidateDue(ctx context.Context) error
}

type Service struct {
	store *sqlite.Client
	cache Invalidator
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.cache = inv
	}
}

func New(store *sqlite.Client, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome is what a graded review did to the schedule.
type Outcome struct {
	Review   *models.Review
	Question *models.Question
	Result   scheduler.Result
}

// Passed reports whether the grade counted as a successful recall.
func (o *Outcome) Passed() bool {
	return o.Review.SelfGrade != nil && *o.Review.SelfGrade >= scheduler.PassingGrade
}

// Start opens a pending review of the question's current answer.
func (s *Service) Start(ctx context.Context, questionID string, now time.Time) (*models.Review, error) {
	var r *models.Review
	err := s.store.WithTx(ctx, func(tx *sqlite.Client) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		r, err = start(ctx, tx, q, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Complete closes a pending review with ev and reschedules its question.
// The grade is validated before anything is written, and the review and
// the question's schedule are updated together or not at all.
func (s *Service) Complete(ctx context.Context, reviewID string, ev models.Evidence, now time.Time) (*Outcome, error) {
	if !scheduler.ValidGrade(ev.Grade) {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", scheduler.ErrInvalidGrade, ev.Grade, scheduler.MinGrade, scheduler.MaxGrade)
	}

	var out *Outcome
	err := s.store.WithTx(ctx, func(tx *sqlite.Client) error {
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		out, err = complete(ctx, tx, r, ev, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.graded(ctx, out)
	return out, nil
}

// Skip closes a pending review without a grade and defers its question by
// SkipDelay. The easiness factor, interval and repetitions are untouched.
func (s *Service) Skip(ctx context.Context, reviewID string, now time.Time) (*models.Question, error) {
	var q *models.Question
	err := s.store.WithTx(ctx, func(tx *sqlite.Client) error {
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if !r.Pending() {
			return fmt.Errorf("%w: review %s is %s", models.ErrReviewClosed, r.ID, r.Status)
		}
		if err := tx.SkipReview(ctx, r.ID, now); err != nil {
			return err
		}
		q, err = deferOneDay(ctx, tx, r.QuestionID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.skipped(ctx, q)
	return q, nil
}

// Grade opens and completes a review in one step. Interactive callers
// collect all input first and then call Grade, so no transaction spans
// user think time.
func (s *Service) Grade(ctx context.Context, questionID string, ev models.Evidence, now time.Time) (*Outcome, error) {
	if !scheduler.ValidGrade(ev.Grade) {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", scheduler.ErrInvalidGrade, ev.Grade, scheduler.MinGrade, scheduler.MaxGrade)
	}

	var out *Outcome
	err := s.store.WithTx(ctx, func(tx *sqlite.Client) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		r, err := start(ctx, tx, q, now)
		if err != nil {
			return err
		}
		out, err = complete(ctx, tx, r, ev, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.graded(ctx, out)
	return out, nil
}

// SkipQuestion defers a question by SkipDelay. A SKIPPED review is recorded
// when the question has an answer to attach it to.
func (s *Service) SkipQuestion(ctx context.Context, questionID string, now time.Time) (*models.Question, error) {
	var q *models.Question
	err := s.store.WithTx(ctx, func(tx *sqlite.Client) error {
		current, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		r, err := start(ctx, tx, current, now)
		switch {
		case err == nil:
			if err := tx.SkipReview(ctx, r.ID, now); err != nil {
				return err
			}
		case errors.Is(err, models.ErrNoAnswer):
		default:
			return err
		}
		q, err = deferOneDay(ctx, tx, current.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.skipped(ctx, q)
	return q, nil
}

// Pending returns the open review of a question, or nil.
func (s *Service) Pending(ctx context.Context, questionID string) (*models.Review, error) {
	return s.store.PendingReview(ctx, questionID)
}

// History lists a question's reviews, most recently scheduled first.
func (s *Service) History(ctx context.Context, questionID string) ([]models.Review, error) {
	return s.store.ReviewsForQuestion(ctx, questionID)
}

// Resolve finds a review by id or unique id prefix.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Review, error) {
	return s.store.ResolveReview(ctx, ref)
}

func (s *Service) graded(ctx context.Context, out *Outcome) {
	metrics.ObserveGrade(*out.Review.SelfGrade, out.Result.State.EasinessFactor)
	logger.Info("Review completed",
		zap.String("review_id", out.Review.ID),
		zap.String("question_id", out.Question.ID),
		zap.Int("grade", *out.Review.SelfGrade),
		zap.Int("interval_days", out.Result.State.Interval),
		zap.Float64("easiness_factor", out.Result.State.EasinessFactor),
	)
	s.invalidate(ctx)
}

func (s *Service) skipped(ctx context.Context, q *models.Question) {
	metrics.ObserveSkip()
	logger.Info("Review skipped", zap.String("question_id", q.ID), zap.Time("next_review_at", *q.NextReviewAt))
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDue(ctx); err != nil {
		logger.Warn("Failed to invalidate due cache", zap.Error(err))
	}
}

func start(ctx context.Context, tx *sqlite.Client, q *models.Question, now time.Time) (*models.Review, error) {
	a, err := tx.CurrentAnswer(ctx, q)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNoAnswer, q.ID)
	}

	scheduledFor := now
	if q.NextReviewAt != nil {
		scheduledFor = *q.NextReviewAt
	}

	r := &models.Review{
		ID:           uuid.New().String(),
		QuestionID:   q.ID,
		AnswerID:     a.ID,
		ScheduledFor: scheduledFor,
		Status:       models.ReviewPending,
	}
	if err := tx.InsertReview(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func complete(ctx context.Context, tx *sqlite.Client, r *models.Review, ev models.Evidence, now time.Time) (*Outcome, error) {
	if !r.Pending() {
		return nil, fmt.Errorf("%w: review %s is %s", models.ErrReviewClosed, r.ID, r.Status)
	}

	q, err := tx.GetQuestion(ctx, r.QuestionID)
	if err != nil {
		return nil, err
	}
	res, err := scheduler.Advance(ev.Grade, q.Schedule, now)
	if err != nil {
		return nil, err
	}

	if err := tx.CompleteReview(ctx, r.ID, ev, now); err != nil {
		return nil, err
	}

	next := res.NextReview
	q.Schedule = res.State
	q.NextReviewAt = &next
	q.UpdatedAt = now
	if err := tx.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}

	closed, err := tx.GetReview(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Review: closed, Question: q, Result: res}, nil
}

func deferOneDay(ctx context.Context, tx *sqlite.Client, questionID string, now time.Time) (*models.Question, error) {
	q, err := tx.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	next := now.Add(SkipDelay)
	q.NextReviewAt = &next
	q.UpdatedAt = now
	if err := tx.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}
