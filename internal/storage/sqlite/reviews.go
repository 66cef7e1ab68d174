package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

const reviewColumns = `id, question_id, answer_id, scheduled_for, completed_at, status,
	self_grade, attempted_explanation, recalled_from_memory, gaps_identified, notes, ai_session_id`

func (c *Client) InsertReview(ctx context.Context, r *models.Review) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.QuestionID,
		r.AnswerID,
		unixMicro(r.ScheduledFor),
		nullTime(r.CompletedAt),
		r.Status.String(),
		nullInt(r.SelfGrade),
		nullString(r.AttemptedExplanation),
		nullBool(r.RecalledFromMemory),
		nullString(r.GapsIdentified),
		nullString(r.Notes),
		nullStringPtr(r.AISessionID),
	)
	if err != nil {
		return storeErr("insert review", err)
	}

	logger.Debug("Review inserted", zap.String("review_id", r.ID), zap.String("question_id", r.QuestionID))
	return nil
}

// CompleteReview closes a pending review with the learner's evidence. A
// review that is no longer pending is left untouched and reported with
// models.ErrReviewClosed.
func (c *Client) CompleteReview(ctx context.Context, id string, ev models.Evidence, completedAt time.Time) error {
	grade := ev.Grade
	res, err := c.q.ExecContext(ctx,
		`UPDATE reviews SET
			completed_at = ?,
			status = ?,
			self_grade = ?,
			attempted_explanation = ?,
			recalled_from_memory = ?,
			gaps_identified = ?,
			notes = ?
		WHERE id = ? AND status = ?`,
		unixMicro(completedAt),
		models.ReviewCompleted.String(),
		nullInt(&grade),
		nullString(ev.AttemptedExplanation),
		nullBool(ev.RecalledFromMemory),
		nullString(ev.Gaps),
		nullString(ev.Notes),
		id,
		models.ReviewPending.String(),
	)
	if err != nil {
		return storeErr("complete review", err)
	}
	return c.expectPending(ctx, res, id)
}

// SkipReview closes a pending review without a grade.
func (c *Client) SkipReview(ctx context.Context, id string, completedAt time.Time) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE reviews SET completed_at = ?, status = ? WHERE id = ? AND status = ?`,
		unixMicro(completedAt),
		models.ReviewSkipped.String(),
		id,
		models.ReviewPending.String(),
	)
	if err != nil {
		return storeErr("skip review", err)
	}
	return c.expectPending(ctx, res, id)
}

// expectPending tells a missing review apart from one that was already closed.
func (c *Client) expectPending(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if n > 0 {
		return nil
	}
	r, err := c.GetReview(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: review %s is %s", models.ErrReviewClosed, r.ID, r.Status)
}

func (c *Client) GetReview(ctx context.Context, id string) (*models.Review, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

// PendingReview returns the most recently scheduled pending review of the
// question, or nil.
func (c *Client) PendingReview(ctx context.Context, questionID string) (*models.Review, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		WHERE question_id = ? AND status = ?
		ORDER BY scheduled_for DESC, rowid DESC LIMIT 1`,
		questionID, models.ReviewPending.String())
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending review: %w", err)
	}
	return r, nil
}

// ReviewsForQuestion returns the review history, latest first.
func (c *Client) ReviewsForQuestion(ctx context.Context, questionID string) ([]models.Review, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE question_id = ? ORDER BY scheduled_for DESC, rowid DESC`,
		questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	return reviews, nil
}

func scanReview(s scanner) (*models.Review, error) {
	var (
		r                                 models.Review
		completedAt                       sql.NullInt64
		status                            string
		grade                             sql.NullInt64
		attempted, gaps, notes, aiSession sql.NullString
		recalled                          sql.NullBool
		scheduledFor                      int64
	)
	err := s.Scan(&r.ID, &r.QuestionID, &r.AnswerID, &scheduledFor, &completedAt, &status,
		&grade, &attempted, &recalled, &gaps, &notes, &aiSession)
	if err != nil {
		return nil, err
	}

	if r.Status, err = models.ParseReviewStatus(status); err != nil {
		return nil, err
	}
	r.ScheduledFor = fromUnixMicro(scheduledFor)
	r.CompletedAt = timePtr(completedAt)
	r.SelfGrade = intPtr(grade)
	r.AttemptedExplanation = attempted.String
	r.RecalledFromMemory = boolPtr(recalled)
	r.GapsIdentified = gaps.String
	r.Notes = notes.String
	r.AISessionID = stringPtr(aiSession)
	return &r, nil
}
