package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

const answerColumns = `id, question_id, raw_notes, simple_explanation, gaps_questions,
	final_explanation, analogies_examples, created_at`

// newestFirst orders answers by creation time, falling back to insertion
// order for answers created within the same instant.
const newestFirst = `ORDER BY created_at DESC, rowid DESC`

func (c *Client) InsertAnswer(ctx context.Context, a *models.Answer) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO answers (`+answerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.QuestionID,
		a.RawNotes,
		nullString(a.SimpleExplanation),
		nullString(a.GapsQuestions),
		nullString(a.FinalExplanation),
		nullString(a.AnalogiesExamples),
		unixMicro(a.CreatedAt),
	)
	if err != nil {
		return storeErr("insert answer", err)
	}

	logger.Debug("Answer inserted", zap.String("answer_id", a.ID), zap.String("question_id", a.QuestionID))
	return nil
}

// UpdateAnswerContent rewrites the text fields of an answer in place.
func (c *Client) UpdateAnswerContent(ctx context.Context, a *models.Answer) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE answers SET
			raw_notes = ?,
			simple_explanation = ?,
			gaps_questions = ?,
			final_explanation = ?,
			analogies_examples = ?
		WHERE id = ?`,
		a.RawNotes,
		nullString(a.SimpleExplanation),
		nullString(a.GapsQuestions),
		nullString(a.FinalExplanation),
		nullString(a.AnalogiesExamples),
		a.ID,
	)
	if err != nil {
		return storeErr("update answer", err)
	}
	return expectOne(res, "answer", a.ID)
}

func (c *Client) GetAnswer(ctx context.Context, id string) (*models.Answer, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = ?`, id)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("answer", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return a, nil
}

// LatestAnswer returns the most recent answer of the question, or nil when
// it has none.
func (c *Client) LatestAnswer(ctx context.Context, questionID string) (*models.Answer, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = ? `+newestFirst+` LIMIT 1`,
		questionID)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest answer: %w", err)
	}
	return a, nil
}

// CurrentAnswer follows the question's current answer pointer. An unset or
// stale pointer falls back to the latest answer; nil means no answers.
func (c *Client) CurrentAnswer(ctx context.Context, q *models.Question) (*models.Answer, error) {
	if q.CurrentAnswerID != nil {
		a, err := c.GetAnswer(ctx, *q.CurrentAnswerID)
		if err == nil && a.QuestionID == q.ID {
			return a, nil
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		logger.Warn("Current answer pointer is stale", zap.String("question_id", q.ID))
	}
	return c.LatestAnswer(ctx, q.ID)
}

// AnswersForQuestion returns every version, newest first.
func (c *Client) AnswersForQuestion(ctx context.Context, questionID string) ([]models.Answer, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = ? `+newestFirst,
		questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	defer rows.Close()

	answers := []models.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

func (c *Client) CountAnswers(ctx context.Context, questionID string) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers WHERE question_id = ?`, questionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return n, nil
}

func scanAnswer(s scanner) (*models.Answer, error) {
	var (
		a                              models.Answer
		simple, gaps, final, analogies sql.NullString
		createdAt                      int64
	)
	err := s.Scan(&a.ID, &a.QuestionID, &a.RawNotes, &simple, &gaps, &final, &analogies, &createdAt)
	if err != nil {
		return nil, err
	}
	a.SimpleExplanation = simple.String
	a.GapsQuestions = gaps.String
	a.FinalExplanation = final.String
	a.AnalogiesExamples = analogies.String
	a.CreatedAt = fromUnixMicro(createdAt)
	return &a, nil
}
