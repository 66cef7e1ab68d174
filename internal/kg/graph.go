// Package kg is the concept graph: named concepts joined by parent,
// prerequisite and related edges, with the traversals used for display.
package kg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
	"github.com/torenunez/lerni/pkg/logger"
)

// Mirror receives committed graph changes. Mirror failures never fail the
// local write; they are logged and can be repaired with Sync.
type Mirror interface {
	PutConcept(ctx context.Context, c *models.Concept) error
	DeleteConcept(ctx context.Context, id string) error
	PutEdge(ctx context.Context, e models.ConceptEdge) error
	DeleteEdges(ctx context.Context, a, b string, rel *models.Relationship) error
	Replace(ctx context.Context, concepts []models.Concept, edges []models.ConceptEdge) error
}

type Graph struct {
	store  *sqlite.Client
	mirror Mirror
}

type Option func(*Graph)

func WithMirror(m Mirror) Option {
	return func(g *Graph) {
		g.mirror = m
	}
}

func NewGraph(store *sqlite.Client, opts ...Option) *Graph {
	g := &Graph{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create adds a concept. Names are unique ignoring case.
func (g *Graph) Create(ctx context.Context, name, description string, aliases []string, now time.Time) (*models.Concept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrEmptyName
	}

	existing, err := g.store.FindConceptByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q already exists as %q", models.ErrDuplicateName, name, existing.Name)
	}

	c := &models.Concept{
		ID:          uuid.New().String(),
		Name:        name,
		Aliases:     mergeAliases(nil, aliases),
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
	}
	if err := g.store.InsertConcept(ctx, c); err != nil {
		return nil, err
	}

	logger.Info("Concept created", zap.String("concept_id", c.ID), zap.String("name", c.Name))
	g.mirrored("put concept", func(m Mirror) error { return m.PutConcept(ctx, c) })
	return c, nil
}

// Resolve finds a concept by id, unique id prefix or name.
func (g *Graph) Resolve(ctx context.Context, ref string) (*models.Concept, error) {
	return g.store.ResolveConcept(ctx, ref)
}

func (g *Graph) Get(ctx context.Context, id string) (*models.Concept, error) {
	return g.store.GetConcept(ctx, id)
}

// Update saves name, description and alias changes.
func (g *Graph) Update(ctx context.Context, c *models.Concept) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.ErrEmptyName
	}

	existing, err := g.store.FindConceptByName(ctx, c.Name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != c.ID {
		return fmt.Errorf("%w: %q already exists", models.ErrDuplicateName, c.Name)
	}

	c.Aliases = mergeAliases(nil, c.Aliases)
	if err := g.store.UpdateConcept(ctx, c); err != nil {
		return err
	}
	g.mirrored("put concept", func(m Mirror) error { return m.PutConcept(ctx, c) })
	return nil
}

// AddAliases appends aliases the concept does not already carry.
func (g *Graph) AddAliases(ctx context.Context, id string, aliases ...string) (*models.Concept, error) {
	c, err := g.store.GetConcept(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Aliases = mergeAliases(c.Aliases, aliases)
	if err := g.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Link adds the edge from -> to. A self-loop is rejected before the store
// is touched.
func (g *Graph) Link(ctx context.Context, fromID, toID string, rel models.Relationship) error {
	if fromID == toID {
		return fmt.Errorf("%w: %s", models.ErrSelfLoop, fromID)
	}
	rel, err := models.ParseRelationship(rel.String())
	if err != nil {
		return err
	}

	edge := models.ConceptEdge{FromConceptID: fromID, ToConceptID: toID, Relationship: rel}
	if err := g.store.InsertEdge(ctx, edge); err != nil {
		return err
	}

	logger.Info("Concepts linked",
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.String("relationship", rel.String()),
	)
	g.mirrored("put edge", func(m Mirror) error { return m.PutEdge(ctx, edge) })
	return nil
}

// Unlink removes edges between a and b in both directions, only of kind rel
// when rel is non-nil. It reports whether anything was removed.
func (g *Graph) Unlink(ctx context.Context, a, b string, rel *models.Relationship) (bool, error) {
	n, err := g.store.DeleteEdges(ctx, a, b, rel)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	logger.Info("Concepts unlinked", zap.String("a", a), zap.String("b", b), zap.Int64("edges", n))
	g.mirrored("delete edges", func(m Mirror) error { return m.DeleteEdges(ctx, a, b, rel) })
	return true, nil
}

// Delete removes a concept and every edge touching it. Questions filed
// under it move to the inbox; the count of such questions is returned.
func (g *Graph) Delete(ctx context.Context, id string) (int, error) {
	var detached int
	err := g.store.WithTx(ctx, func(tx *sqlite.Client) error {
		n, err := tx.CountQuestionsForConcept(ctx, id)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteConcept(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return models.NotFound("concept", id)
		}
		detached = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Concept deleted", zap.String("concept_id", id), zap.Int("detached_questions", detached))
	g.mirrored("delete concept", func(m Mirror) error { return m.DeleteConcept(ctx, id) })
	return detached, nil
}

func (g *Graph) Parents(ctx context.Context, id string) ([]models.Concept, error) {
	return g.store.Parents(ctx, id)
}

func (g *Graph) Children(ctx context.Context, id string) ([]models.Concept, error) {
	return g.store.Children(ctx, id)
}

func (g *Graph) Prerequisites(ctx context.Context, id string) ([]models.Concept, error) {
	return g.store.Prerequisites(ctx, id)
}

// Dependents lists the concepts that require id.
func (g *Graph) Dependents(ctx context.Context, id string) ([]models.Concept, error) {
	return g.store.Dependents(ctx, id)
}

func (g *Graph) Related(ctx context.Context, id string) ([]models.Concept, error) {
	return g.store.Related(ctx, id)
}

// Roots lists concepts without a parent.
func (g *Graph) Roots(ctx context.Context) ([]models.Concept, error) {
	return g.store.ListRootConcepts(ctx)
}

func (g *Graph) List(ctx context.Context) ([]models.Concept, error) {
	return g.store.ListConcepts(ctx)
}

func (g *Graph) Search(ctx context.Context, query string) ([]models.Concept, error) {
	return g.store.SearchConcepts(ctx, strings.TrimSpace(query))
}

func (g *Graph) FindByAlias(ctx context.Context, token string) ([]models.Concept, error) {
	return g.store.FindConceptsByAlias(ctx, strings.TrimSpace(token))
}

// Sync pushes the whole local graph to the mirror.
func (g *Graph) Sync(ctx context.Context) (int, int, error) {
	if g.mirror == nil {
		return 0, 0, fmt.Errorf("no graph mirror configured")
	}
	concepts, err := g.store.ListConcepts(ctx)
	if err != nil {
		return 0, 0, err
	}
	edges, err := g.store.ListEdges(ctx)
	if err != nil {
		return 0, 0, err
	}
	if err := g.mirror.Replace(ctx, concepts, edges); err != nil {
		return 0, 0, fmt.Errorf("failed to sync graph mirror: %w", err)
	}

	logger.Info("Graph mirror synced", zap.Int("concepts", len(concepts)), zap.Int("edges", len(edges)))
	return len(concepts), len(edges), nil
}

func (g *Graph) mirrored(op string, fn func(Mirror) error) {
	if g.mirror == nil {
		return
	}
	if err := fn(g.mirror); err != nil {
		logger.Warn("Graph mirror update failed", zap.String("op", op), zap.Error(err))
	}
}

// mergeAliases appends the non-blank entries of add that are not already in
// base, comparing without case.
func mergeAliases(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, a := range append(append([]string{}, base...), add...) {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
