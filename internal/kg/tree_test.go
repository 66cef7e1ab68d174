package kg

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/storage/models"
)

func render(tree *TreeNode) string {
	var b strings.Builder
	tree.Walk(func(n *TreeNode, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Concept.Name)
		if n.Cycle {
			b.WriteString(" (cycle)")
		}
		if n.Truncated {
			b.WriteString(" ...")
		}
		b.WriteString("\n")
	})
	return b.String()
}

func TestBuildTree(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)
	prog := mustCreate(t, g, "Programming")
	fn := mustCreate(t, g, "Functions")
	closures := mustCreate(t, g, "Closures")
	decorators := mustCreate(t, g, "Decorators")
	types := mustCreate(t, g, "Types")

	childOf(t, g, fn, prog)
	childOf(t, g, types, prog)
	childOf(t, g, closures, fn)
	childOf(t, g, decorators, fn)
	require.NoError(t, g.Link(ctx, decorators.ID, closures.ID, models.RelPrerequisite))

	tree, err := g.BuildTree(ctx, prog.ID)
	require.NoError(t, err)

	want := "Programming\n" +
		"  Functions\n" +
		"    Closures\n" +
		"    Decorators\n" +
		"  Types\n"
	assert.Equal(t, want, render(tree))

	_, err = g.BuildTree(ctx, "ffffffff-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBuildTree_CycleTerminates(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)
	a := mustCreate(t, g, "A")
	b := mustCreate(t, g, "B")
	c := mustCreate(t, g, "C")
	childOf(t, g, b, a)
	childOf(t, g, c, b)
	childOf(t, g, a, c)

	tree, err := g.BuildTree(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A\n  B\n    C\n      A (cycle)\n", render(tree))

	below, err := g.Descendants(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, conceptNames(below))
}

func TestBuildTree_DepthCap(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)

	chain := make([]*models.Concept, MaxTreeDepth+2)
	for i := range chain {
		chain[i] = mustCreate(t, g, fmt.Sprintf("level-%02d", i))
		if i > 0 {
			childOf(t, g, chain[i], chain[i-1])
		}
	}

	tree, err := g.BuildTree(ctx, chain[0].ID)
	require.NoError(t, err)

	var deepest *TreeNode
	count := 0
	tree.Walk(func(n *TreeNode, depth int) {
		count++
		if depth == MaxTreeDepth {
			deepest = n
		}
	})
	assert.Equal(t, MaxTreeDepth+1, count)
	require.NotNil(t, deepest)
	assert.Equal(t, "level-10", deepest.Concept.Name)
	assert.True(t, deepest.Truncated)
	assert.Empty(t, deepest.Children)

	below, err := g.Descendants(ctx, chain[0].ID)
	require.NoError(t, err)
	assert.Len(t, below, MaxTreeDepth+1)
}

func TestForest(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)
	math := mustCreate(t, g, "Math")
	algebra := mustCreate(t, g, "Algebra")
	history := mustCreate(t, g, "History")
	x := mustCreate(t, g, "X")
	y := mustCreate(t, g, "Y")
	childOf(t, g, algebra, math)
	childOf(t, g, x, y)
	childOf(t, g, y, x)

	forest, err := g.Forest(ctx)
	require.NoError(t, err)

	require.Len(t, forest.Trees, 2)
	assert.Equal(t, history.Name, forest.Trees[0].Concept.Name)
	assert.Equal(t, "Math\n  Algebra\n", render(forest.Trees[1]))
	assert.Equal(t, []string{"X", "Y"}, conceptNames(forest.Orphans))
}
