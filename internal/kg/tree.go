package kg

import (
	"context"

	"github.com/torenunez/lerni/internal/storage/models"
)

// MaxTreeDepth bounds tree expansion. Parent edges are not checked for
// cycles on write, so traversals may not assume a DAG.
const MaxTreeDepth = 10

type TreeNode struct {
	Concept  models.Concept
	Children []*TreeNode
	// Cycle marks a concept that already appears among its own ancestors.
	// Such a node is not expanded.
	Cycle bool
	// Truncated marks a node at MaxTreeDepth that has unexpanded children.
	Truncated bool
}

// Walk visits the tree depth-first in display order.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	type item struct {
		node  *TreeNode
		depth int
	}
	stack := []item{{n, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(it.node, it.depth)
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{it.node.Children[i], it.depth + 1})
		}
	}
}

type frame struct {
	node  *TreeNode
	up    *frame
	depth int
}

func (f *frame) onPath(id string) bool {
	for p := f; p != nil; p = p.up {
		if p.node.Concept.ID == id {
			return true
		}
	}
	return false
}

// BuildTree expands the children of rootID without recursion.
func (g *Graph) BuildTree(ctx context.Context, rootID string) (*TreeNode, error) {
	root, err := g.store.GetConcept(ctx, rootID)
	if err != nil {
		return nil, err
	}

	tree := &TreeNode{Concept: *root}
	stack := []*frame{{node: tree}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := g.store.Children(ctx, f.node.Concept.ID)
		if err != nil {
			return nil, err
		}
		if f.depth >= MaxTreeDepth {
			f.node.Truncated = len(children) > 0
			continue
		}

		for _, child := range children {
			n := &TreeNode{Concept: child}
			f.node.Children = append(f.node.Children, n)
			if f.onPath(child.ID) {
				n.Cycle = true
				continue
			}
			stack = append(stack, &frame{node: n, up: f, depth: f.depth + 1})
		}
	}
	return tree, nil
}

// Descendants returns every concept reachable from rootID through child
// edges, breadth first, each once. rootID itself is excluded even when a
// cycle leads back to it.
func (g *Graph) Descendants(ctx context.Context, rootID string) ([]models.Concept, error) {
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	var out []models.Concept

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := g.store.Children(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// Forest is the whole hierarchy: one tree per root, plus the concepts no
// root reaches. Those only exist when parent edges form a cycle.
type Forest struct {
	Trees   []*TreeNode
	Orphans []models.Concept
}

func (g *Graph) Forest(ctx context.Context) (*Forest, error) {
	roots, err := g.store.ListRootConcepts(ctx)
	if err != nil {
		return nil, err
	}

	forest := &Forest{}
	reached := make(map[string]bool)
	for _, root := range roots {
		tree, err := g.BuildTree(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		forest.Trees = append(forest.Trees, tree)

		reached[root.ID] = true
		below, err := g.Descendants(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range below {
			reached[c.ID] = true
		}
	}

	all, err := g.store.ListConcepts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if !reached[c.ID] {
			forest.Orphans = append(forest.Orphans, c)
		}
	}
	return forest, nil
}
