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

const conceptColumns = `c.id, c.name, c.aliases, c.description, c.created_at`

func (c *Client) InsertConcept(ctx context.Context, concept *models.Concept) error {
	aliases, err := marshalList(concept.Aliases)
	if err != nil {
		return err
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO concepts (id, name, aliases, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		concept.ID,
		concept.Name,
		aliases,
		nullString(concept.Description),
		unixMicro(concept.CreatedAt),
	)
	if err != nil {
		return storeErr("insert concept", err)
	}

	logger.Debug("Concept inserted", zap.String("concept_id", concept.ID), zap.String("name", concept.Name))
	return nil
}

func (c *Client) UpdateConcept(ctx context.Context, concept *models.Concept) error {
	aliases, err := marshalList(concept.Aliases)
	if err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx,
		`UPDATE concepts SET name = ?, aliases = ?, description = ? WHERE id = ?`,
		concept.Name,
		aliases,
		nullString(concept.Description),
		concept.ID,
	)
	if err != nil {
		return storeErr("update concept", err)
	}
	return expectOne(res, "concept", concept.ID)
}

// DeleteConcept removes the concept. Edges touching it cascade and questions
// referencing it fall back to the inbox.
func (c *Client) DeleteConcept(ctx context.Context, id string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id)
	if err != nil {
		return false, storeErr("delete concept", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete concept: %w", err)
	}
	return n > 0, nil
}

func (c *Client) GetConcept(ctx context.Context, id string) (*models.Concept, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+conceptColumns+` FROM concepts c WHERE c.id = ?`, id)
	concept, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("concept", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get concept: %w", err)
	}
	return concept, nil
}

// FindConceptByName returns the concept whose name matches ignoring case, or
// nil when there is none.
func (c *Client) FindConceptByName(ctx context.Context, name string) (*models.Concept, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+conceptColumns+` FROM concepts c WHERE LOWER(c.name) = LOWER(?)`, name)
	concept, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get concept by name: %w", err)
	}
	return concept, nil
}

// FindConceptsByAlias matches token against names and aliases, ignoring case.
func (c *Client) FindConceptsByAlias(ctx context.Context, token string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "find concepts by alias",
		`SELECT `+conceptColumns+` FROM concepts c
		WHERE LOWER(c.name) = LOWER(?)
		   OR EXISTS (SELECT 1 FROM json_each(c.aliases) WHERE LOWER(value) = LOWER(?))
		ORDER BY c.name`,
		token, token)
}

// SearchConcepts does a substring match on names and aliases.
func (c *Client) SearchConcepts(ctx context.Context, query string) ([]models.Concept, error) {
	pattern := likeContains(query)
	return c.queryConcepts(ctx, "search concepts",
		`SELECT `+conceptColumns+` FROM concepts c
		WHERE c.name LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM json_each(c.aliases) WHERE value LIKE ? ESCAPE '\')
		ORDER BY c.name`,
		pattern, pattern)
}

func (c *Client) ListConcepts(ctx context.Context) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "list concepts", `SELECT `+conceptColumns+` FROM concepts c ORDER BY c.name`)
}

// ListRootConcepts returns concepts without an outgoing parent edge.
func (c *Client) ListRootConcepts(ctx context.Context) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "list root concepts",
		`SELECT `+conceptColumns+` FROM concepts c
		WHERE NOT EXISTS (
			SELECT 1 FROM concept_edges e
			WHERE e.from_concept_id = c.id AND e.relationship = ?
		)
		ORDER BY c.name`,
		models.RelParent.String())
}

func (c *Client) CountConcepts(ctx context.Context) (int, error) {
	var n int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM concepts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count concepts: %w", err)
	}
	return n, nil
}

func (c *Client) queryConcepts(ctx context.Context, op, query string, args ...any) ([]models.Concept, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	concepts := []models.Concept{}
	for rows.Next() {
		concept, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		concepts = append(concepts, *concept)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return concepts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConcept(s scanner) (*models.Concept, error) {
	var (
		concept     models.Concept
		aliases     string
		description sql.NullString
		createdAt   int64
	)
	if err := s.Scan(&concept.ID, &concept.Name, &aliases, &description, &createdAt); err != nil {
		return nil, err
	}

	list, err := unmarshalList(aliases)
	if err != nil {
		return nil, err
	}
	concept.Aliases = list
	concept.Description = description.String
	concept.CreatedAt = fromUnixMicro(createdAt)
	return &concept, nil
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	if n == 0 {
		return models.NotFound(entity, id)
	}
	return nil
}
