package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/torenunez/lerni/internal/capture"
	"github.com/torenunez/lerni/internal/kg"
	"github.com/torenunez/lerni/internal/storage/models"
)

func newConceptCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concept",
		Short: "Manage the concept graph",
	}
	cmd.AddCommand(
		newConceptNewCmd(a),
		newConceptListCmd(a),
		newConceptShowCmd(a),
		newConceptLinkCmd(a),
		newConceptUnlinkCmd(a),
		newConceptDeleteCmd(a),
		newConceptSearchCmd(a),
		newConceptSyncCmd(a),
	)
	return cmd
}

func newConceptNewCmd(a *app) *cobra.Command {
	var (
		description string
		aliases     string
		parentRef   string
	)
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var parent *models.Concept
			if parentRef != "" {
				p, err := a.graph.Resolve(ctx, parentRef)
				if err != nil {
					return err
				}
				parent = p
			}

			c, err := a.graph.Create(ctx, args[0], description, strings.Split(aliases, ","), a.now)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("Created concept "+c.Name+"."))
			fmt.Fprintln(out, mutedStyle.Render("ID: "+c.ID))

			if parent != nil {
				if err := a.graph.Link(ctx, c.ID, parent.ID, models.RelParent); err != nil {
					return err
				}
				fmt.Fprintln(out, mutedStyle.Render("Parent: "+parent.Name))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "desc", "d", "", "description")
	cmd.Flags().StringVarP(&aliases, "alias", "a", "", "comma-separated aliases")
	cmd.Flags().StringVarP(&parentRef, "parent", "p", "", "parent concept name or id")
	return cmd
}

func newConceptListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the concept hierarchy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			forest, err := a.graph.Forest(ctx)
			if err != nil {
				return err
			}
			if len(forest.Trees) == 0 && len(forest.Orphans) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No concepts yet. Create one with 'lerni concept new NAME'."))
				return nil
			}

			fmt.Fprintln(out, titleStyle.Render("Concepts"))
			for _, tree := range forest.Trees {
				if err := a.printTree(ctx, out, tree); err != nil {
					return err
				}
			}
			if len(forest.Orphans) > 0 {
				fmt.Fprintln(out, warnStyle.Render("\nIn a parent cycle (not under any root):"))
				for _, c := range forest.Orphans {
					fmt.Fprintln(out, "  "+c.Name)
				}
			}

			inbox, err := a.ledger.Uncategorized(ctx)
			if err != nil {
				return err
			}
			if len(inbox) > 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("\nInbox: %d uncategorized question(s)", len(inbox))))
			}
			return nil
		},
	}
}

func (a *app) printTree(ctx context.Context, out io.Writer, tree *kg.TreeNode) error {
	var err error
	tree.Walk(func(n *kg.TreeNode, depth int) {
		if err != nil {
			return
		}
		var count int
		count, err = a.ledger.CountForConcept(ctx, n.Concept.ID)

		line := strings.Repeat("  ", depth) + n.Concept.Name
		if depth == 0 {
			line = headingStyle.Render(n.Concept.Name)
		}
		if count > 0 {
			line += mutedStyle.Render(fmt.Sprintf(" (%d)", count))
		}
		switch {
		case n.Cycle:
			line += warnStyle.Render(" ↺ cycle")
		case n.Truncated:
			line += mutedStyle.Render(" …")
		}
		fmt.Fprintln(out, line)
	})
	return err
}

func newConceptShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show CONCEPT",
		Short: "Show a concept, its relationships and questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c, err := a.graph.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			body := c.Description
			if body == "" {
				body = mutedStyle.Render("(no description)")
			}
			fmt.Fprintln(out, panel(c.Name, body, colorAccent))
			fmt.Fprintln(out, mutedStyle.Render("ID: "+c.ID))
			if len(c.Aliases) > 0 {
				fmt.Fprintln(out, mutedStyle.Render("Aliases: "+strings.Join(c.Aliases, ", ")))
			}

			relations := []struct {
				label string
				fetch func(context.Context, string) ([]models.Concept, error)
			}{
				{"Parents", a.graph.Parents},
				{"Children", a.graph.Children},
				{"Prerequisites", a.graph.Prerequisites},
				{"Needed by", a.graph.Dependents},
				{"Related", a.graph.Related},
			}
			for _, rel := range relations {
				list, err := rel.fetch(ctx, c.ID)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					continue
				}
				names := make([]string, len(list))
				for i, x := range list {
					names[i] = x.Name
				}
				fmt.Fprintln(out, titleStyle.Render(rel.label+": ")+strings.Join(names, ", "))
			}

			questions, err := a.ledger.ForConcept(ctx, c.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			a.printQuestions(ctx, out, questions)
			return nil
		},
	}
}

func newConceptLinkCmd(a *app) *cobra.Command {
	var relType string
	cmd := &cobra.Command{
		Use:   "link CONCEPT1 CONCEPT2",
		Short: "Relate two concepts",
		Long: `Types:
  parent        CONCEPT1 is a child of CONCEPT2
  prerequisite  CONCEPT2 must be understood before CONCEPT1
  related       symmetric association`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			rel, err := models.ParseRelationship(relType)
			if err != nil {
				return fmt.Errorf("%w (use parent, prerequisite or related)", err)
			}
			c1, c2, err := a.resolvePair(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			err = a.graph.Link(ctx, c1.ID, c2.ID, rel)
			if errors.Is(err, models.ErrDuplicateEdge) {
				fmt.Fprintln(out, warnStyle.Render("This relationship already exists."))
				return nil
			}
			if err != nil {
				return err
			}

			switch rel {
			case models.RelParent:
				fmt.Fprintln(out, successStyle.Render("Linked: ")+c1.Name+" → "+c2.Name+" (parent)")
			case models.RelPrerequisite:
				fmt.Fprintln(out, successStyle.Render("Linked: ")+c2.Name+" is a prerequisite for "+c1.Name)
			default:
				fmt.Fprintln(out, successStyle.Render("Linked: ")+c1.Name+" ↔ "+c2.Name+" (related)")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&relType, "type", "t", models.RelParent.String(), "parent, prerequisite or related")
	return cmd
}

func newConceptUnlinkCmd(a *app) *cobra.Command {
	var relType string
	cmd := &cobra.Command{
		Use:   "unlink CONCEPT1 CONCEPT2",
		Short: "Remove relationships between two concepts",
		Long:  "Removes edges in both directions. Without --type every relationship between the two is removed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var rel *models.Relationship
			if relType != "" {
				r, err := models.ParseRelationship(relType)
				if err != nil {
					return err
				}
				rel = &r
			}
			c1, c2, err := a.resolvePair(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			removed, err := a.graph.Unlink(ctx, c1.ID, c2.ID, rel)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(out, warnStyle.Render("No matching relationship found."))
				return nil
			}
			fmt.Fprintln(out, successStyle.Render("Unlinked: ")+c1.Name+" / "+c2.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&relType, "type", "t", "", "only remove this relationship type")
	return cmd
}

func (a *app) resolvePair(ctx context.Context, ref1, ref2 string) (*models.Concept, *models.Concept, error) {
	c1, err := a.graph.Resolve(ctx, ref1)
	if err != nil {
		return nil, nil, err
	}
	c2, err := a.graph.Resolve(ctx, ref2)
	if err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}

func newConceptDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete CONCEPT",
		Short: "Delete a concept; its questions move to the inbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.graph.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if !force {
				ok, err := capture.Confirm(ctx, fmt.Sprintf("Delete concept %q? Its questions will move to the inbox.", c.Name), false)
				if err != nil {
					return err
				}
				if !ok {
					return capture.ErrAborted
				}
			}

			detached, err := a.graph.Delete(ctx, c.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render("Deleted concept "+c.Name+"."))
			if detached > 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d question(s) moved to the inbox.", detached)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}

func newConceptSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search TEXT",
		Short: "Find concepts by name or alias",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			concepts, err := a.graph.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(concepts) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No concepts match."))
				return nil
			}
			t := newTable("ID", "Name", "Aliases")
			for _, c := range concepts {
				t.Row(idStyle.Render(shortID(c.ID)), c.Name, strings.Join(c.Aliases, ", "))
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}

func newConceptSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the Neo4j mirror from the local graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.neo4j == nil {
				return errors.New("neo4j mirror is not enabled or not reachable (see neo4j.enabled in config.toml)")
			}
			concepts, edges, err := a.graph.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Mirrored %d concept(s) and %d edge(s).", concepts, edges)))
			return nil
		},
	}
}
