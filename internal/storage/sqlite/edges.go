package sqlite

import (
	"context"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

// InsertEdge stores a typed edge. An existing identical triple yields
// models.ErrDuplicateEdge and a self-loop yields models.ErrSelfLoop; both are
// decided from the driver's constraint codes.
func (c *Client) InsertEdge(ctx context.Context, edge models.ConceptEdge) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO concept_edges (from_concept_id, to_concept_id, relationship) VALUES (?, ?, ?)`,
		edge.FromConceptID,
		edge.ToConceptID,
		edge.Relationship.String(),
	)
	switch {
	case err == nil:
	case isExtended(err, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique):
		return fmt.Errorf("%w: %s -> %s (%s)", models.ErrDuplicateEdge, edge.FromConceptID, edge.ToConceptID, edge.Relationship)
	case isExtended(err, sqlite3.ErrConstraintCheck):
		return fmt.Errorf("%w: %s", models.ErrSelfLoop, edge.FromConceptID)
	default:
		return storeErr("insert concept edge", err)
	}

	logger.Debug("Concept edge inserted",
		zap.String("from", edge.FromConceptID),
		zap.String("to", edge.ToConceptID),
		zap.String("relationship", edge.Relationship.String()),
	)
	return nil
}

// DeleteEdges removes the edges between a and b in both directions. With a
// nil relationship every kind is removed. It reports how many rows went.
func (c *Client) DeleteEdges(ctx context.Context, a, b string, rel *models.Relationship) (int64, error) {
	query := `DELETE FROM concept_edges
		WHERE ((from_concept_id = ? AND to_concept_id = ?) OR (from_concept_id = ? AND to_concept_id = ?))`
	args := []any{a, b, b, a}
	if rel != nil {
		query += ` AND relationship = ?`
		args = append(args, rel.String())
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr("delete concept edges", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete concept edges: %w", err)
	}
	return n, nil
}

// Parents returns the concepts c is a child of.
func (c *Client) Parents(ctx context.Context, conceptID string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "get parents",
		`SELECT `+conceptColumns+` FROM concepts c
		JOIN concept_edges e ON e.to_concept_id = c.id
		WHERE e.from_concept_id = ? AND e.relationship = ?
		ORDER BY c.name`,
		conceptID, models.RelParent.String())
}

// Children returns the concepts that name c as their parent.
func (c *Client) Children(ctx context.Context, conceptID string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "get children",
		`SELECT `+conceptColumns+` FROM concepts c
		JOIN concept_edges e ON e.from_concept_id = c.id
		WHERE e.to_concept_id = ? AND e.relationship = ?
		ORDER BY c.name`,
		conceptID, models.RelParent.String())
}

// Prerequisites returns what must be understood before c.
func (c *Client) Prerequisites(ctx context.Context, conceptID string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "get prerequisites",
		`SELECT `+conceptColumns+` FROM concepts c
		JOIN concept_edges e ON e.to_concept_id = c.id
		WHERE e.from_concept_id = ? AND e.relationship = ?
		ORDER BY c.name`,
		conceptID, models.RelPrerequisite.String())
}

// Dependents returns the concepts that list c as a prerequisite.
func (c *Client) Dependents(ctx context.Context, conceptID string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "get dependents",
		`SELECT `+conceptColumns+` FROM concepts c
		JOIN concept_edges e ON e.from_concept_id = c.id
		WHERE e.to_concept_id = ? AND e.relationship = ?
		ORDER BY c.name`,
		conceptID, models.RelPrerequisite.String())
}

// Related returns concepts joined to c by a related edge stored in either
// direction.
func (c *Client) Related(ctx context.Context, conceptID string) ([]models.Concept, error) {
	return c.queryConcepts(ctx, "get related",
		`SELECT DISTINCT `+conceptColumns+` FROM concepts c
		JOIN concept_edges e ON (e.from_concept_id = c.id OR e.to_concept_id = c.id)
		WHERE (e.from_concept_id = ? OR e.to_concept_id = ?)
		  AND e.relationship = ?
		  AND c.id != ?
		ORDER BY c.name`,
		conceptID, conceptID, models.RelRelated.String(), conceptID)
}

// EdgesFor returns every edge touching the concept.
func (c *Client) EdgesFor(ctx context.Context, conceptID string) ([]models.ConceptEdge, error) {
	return c.queryEdges(ctx,
		`SELECT from_concept_id, to_concept_id, relationship FROM concept_edges
		WHERE from_concept_id = ? OR to_concept_id = ?`,
		conceptID, conceptID)
}

func (c *Client) ListEdges(ctx context.Context) ([]models.ConceptEdge, error) {
	return c.queryEdges(ctx,
		`SELECT from_concept_id, to_concept_id, relationship FROM concept_edges
		ORDER BY relationship, from_concept_id, to_concept_id`)
}

func (c *Client) queryEdges(ctx context.Context, query string, args ...any) ([]models.ConceptEdge, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get concept edges: %w", err)
	}
	defer rows.Close()

	edges := []models.ConceptEdge{}
	for rows.Next() {
		var (
			edge models.ConceptEdge
			rel  string
		)
		if err := rows.Scan(&edge.FromConceptID, &edge.ToConceptID, &rel); err != nil {
			return nil, fmt.Errorf("failed to scan concept edge: %w", err)
		}
		if edge.Relationship, err = models.ParseRelationship(rel); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get concept edges: %w", err)
	}
	return edges, nil
}
