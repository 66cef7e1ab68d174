package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

const questionColumns = `id, concept_id, prompt, current_answer_id, next_review_at,
	schedule_state, difficulty, source_refs, created_at, updated_at`

func (c *Client) InsertQuestion(ctx context.Context, q *models.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{q.ID}, args...)...,
	)
	if err != nil {
		return storeErr("insert question", err)
	}

	logger.Debug("Question inserted", zap.String("question_id", q.ID))
	return nil
}

// UpdateQuestion writes every mutable column of q.
func (c *Client) UpdateQuestion(ctx context.Context, q *models.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx,
		`UPDATE questions SET
			concept_id = ?,
			prompt = ?,
			current_answer_id = ?,
			next_review_at = ?,
			schedule_state = ?,
			difficulty = ?,
			source_refs = ?,
			created_at = ?,
			updated_at = ?
		WHERE id = ?`,
		append(args, q.ID)...,
	)
	if err != nil {
		return storeErr("update question", err)
	}
	return expectOne(res, "question", q.ID)
}

// DeleteQuestion removes the question with its answers and reviews.
func (c *Client) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return false, storeErr("delete question", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete question: %w", err)
	}
	return n > 0, nil
}

func (c *Client) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("question", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// DueQuestions returns questions with next_review_at <= asOf, oldest first.
func (c *Client) DueQuestions(ctx context.Context, asOf time.Time) ([]models.Question, error) {
	return c.queryQuestions(ctx, "get due questions",
		`SELECT `+questionColumns+` FROM questions
		WHERE next_review_at IS NOT NULL AND next_review_at <= ?
		ORDER BY next_review_at, created_at`,
		unixMicro(asOf))
}

// UpcomingQuestions returns questions with asOf < next_review_at <= until.
func (c *Client) UpcomingQuestions(ctx context.Context, asOf, until time.Time) ([]models.Question, error) {
	return c.queryQuestions(ctx, "get upcoming questions",
		`SELECT `+questionColumns+` FROM questions
		WHERE next_review_at IS NOT NULL AND next_review_at > ? AND next_review_at <= ?
		ORDER BY next_review_at, created_at`,
		unixMicro(asOf), unixMicro(until))
}

func (c *Client) QuestionsForConcept(ctx context.Context, conceptID string) ([]models.Question, error) {
	return c.queryQuestions(ctx, "get questions for concept",
		`SELECT `+questionColumns+` FROM questions WHERE concept_id = ? ORDER BY created_at DESC`,
		conceptID)
}

func (c *Client) UncategorizedQuestions(ctx context.Context) ([]models.Question, error) {
	return c.queryQuestions(ctx, "get uncategorized questions",
		`SELECT `+questionColumns+` FROM questions WHERE concept_id IS NULL ORDER BY created_at DESC`)
}

// ListQuestions applies filter and orders by most recently updated.
func (c *Client) ListQuestions(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error) {
	var (
		where []string
		args  []any
	)
	if filter.DueOnly {
		where = append(where, `next_review_at IS NOT NULL AND next_review_at <= ?`)
		args = append(args, unixMicro(filter.AsOf))
	}
	if filter.Uncategorized {
		where = append(where, `concept_id IS NULL`)
	} else if filter.ConceptID != "" {
		where = append(where, `concept_id = ?`)
		args = append(args, filter.ConceptID)
	}

	query := `SELECT ` + questionColumns + ` FROM questions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY updated_at DESC`

	return c.queryQuestions(ctx, "list questions", query, args...)
}

// SearchQuestions does a case-insensitive substring match on the prompt.
func (c *Client) SearchQuestions(ctx context.Context, query string) ([]models.Question, error) {
	return c.queryQuestions(ctx, "search questions",
		`SELECT `+questionColumns+` FROM questions WHERE prompt LIKE ? ESCAPE '\' ORDER BY updated_at DESC`,
		likeContains(query))
}

func (c *Client) CountQuestionsForConcept(ctx context.Context, conceptID string) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE concept_id = ?`, conceptID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

func (c *Client) queryQuestions(ctx context.Context, op, query string, args ...any) ([]models.Question, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return questions, nil
}

// questionArgs returns the column values after id, in questionColumns order.
func questionArgs(q *models.Question) ([]any, error) {
	schedule, err := json.Marshal(q.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule state: %w", err)
	}
	refs, err := marshalList(q.SourceRefs)
	if err != nil {
		return nil, err
	}
	return []any{
		nullStringPtr(q.ConceptID),
		q.Prompt,
		nullStringPtr(q.CurrentAnswerID),
		nullTime(q.NextReviewAt),
		string(schedule),
		nullInt(q.Difficulty),
		refs,
		unixMicro(q.CreatedAt),
		unixMicro(q.UpdatedAt),
	}, nil
}

func scanQuestion(s scanner) (*models.Question, error) {
	var (
		q             models.Question
		conceptID     sql.NullString
		currentAnswer sql.NullString
		nextReview    sql.NullInt64
		schedule      string
		difficulty    sql.NullInt64
		refs          string
		createdAt     int64
		updatedAt     int64
	)
	err := s.Scan(&q.ID, &conceptID, &q.Prompt, &currentAnswer, &nextReview,
		&schedule, &difficulty, &refs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(schedule), &q.Schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule state: %w", err)
	}
	if q.SourceRefs, err = unmarshalList(refs); err != nil {
		return nil, err
	}
	q.ConceptID = stringPtr(conceptID)
	q.CurrentAnswerID = stringPtr(currentAnswer)
	q.NextReviewAt = timePtr(nextReview)
	q.Difficulty = intPtr(difficulty)
	q.CreatedAt = fromUnixMicro(createdAt)
	q.UpdatedAt = fromUnixMicro(updatedAt)
	return &q, nil
}
