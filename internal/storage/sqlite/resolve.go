package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/torenunez/lerni/internal/storage/models"
)

// resolveID maps a user-supplied reference onto a row id of table.
//
// An exact id wins. A reference shorter than a full id is then tried as a
// prefix: one match resolves, several fail with ErrAmbiguousReference. An
// empty result with a nil error means nothing matched by id.
func (c *Client) resolveID(ctx context.Context, table, entity, ref string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(ref))
	if id == "" {
		return "", nil
	}

	var found string
	err := c.q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE id = ?`, id).Scan(&found)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up %s: %w", entity, err)
	}

	if len(id) >= models.IDLength {
		return "", nil
	}

	rows, err := c.q.QueryContext(ctx, `SELECT id FROM `+table+` WHERE id LIKE ? ESCAPE '\'`, likePrefix(id))
	if err != nil {
		return "", fmt.Errorf("failed to look up %s by prefix: %w", entity, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("failed to scan %s id: %w", entity, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to look up %s by prefix: %w", entity, err)
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		return "", models.Ambiguous(entity, ref, len(matches))
	}
}

// ResolveConcept finds a concept by id, id prefix or, failing those, by
// case-insensitive name.
func (c *Client) ResolveConcept(ctx context.Context, ref string) (*models.Concept, error) {
	id, err := c.resolveID(ctx, "concepts", "concept", ref)
	if err != nil {
		return nil, err
	}
	if id != "" {
		return c.GetConcept(ctx, id)
	}

	concept, err := c.FindConceptByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if concept == nil {
		return nil, models.NotFound("concept", ref)
	}
	return concept, nil
}

// ResolveQuestion finds a question by id or id prefix.
func (c *Client) ResolveQuestion(ctx context.Context, ref string) (*models.Question, error) {
	id, err := c.resolveID(ctx, "questions", "question", ref)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, models.NotFound("question", ref)
	}
	return c.GetQuestion(ctx, id)
}

// ResolveReview finds a review by id or id prefix.
func (c *Client) ResolveReview(ctx context.Context, ref string) (*models.Review, error) {
	id, err := c.resolveID(ctx, "reviews", "review", ref)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, models.NotFound("review", ref)
	}
	return c.GetReview(ctx, id)
}
