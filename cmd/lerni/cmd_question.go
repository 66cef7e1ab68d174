package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/torenunez/lerni/internal/capture"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/suggest"
)

func newNewCmd(a *app) *cobra.Command {
	var (
		quick      bool
		conceptRef string
		useEditor  bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a question using the Feynman workflow",
		Long: `Write a question, then work through the Feynman steps:

  1. Raw notes: dump everything you know
  2. Simple explanation: teach it to a beginner
  3. Gaps & questions: what you could not explain
  4. Final explanation, plus analogies and examples

Use --quick to stop after the raw notes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			src := a.source(useEditor)

			prompt, err := src.Text(ctx, capture.PromptField)
			if err != nil {
				return err
			}
			if prompt == "" {
				return fmt.Errorf("%w: a question is required", capture.ErrAborted)
			}

			var conceptID *string
			if conceptRef != "" {
				c, err := a.conceptOrCreate(ctx, out, conceptRef)
				if err != nil {
					return err
				}
				conceptID = &c.ID
			}

			fields, err := capture.AnswerFields(ctx, src, quick, nil)
			if err != nil {
				return err
			}

			q, _, err := a.ledger.CreateWithAnswer(ctx, prompt, conceptID, fields, a.now)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, successStyle.Render("Question created."))
			fmt.Fprintln(out, mutedStyle.Render("ID: "+q.ID))
			if conceptID == nil {
				a.printSuggestions(ctx, out, q)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "capture raw notes only")
	cmd.Flags().StringVarP(&conceptRef, "concept", "c", "", "concept name or id to file the question under")
	cmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "use the external editor instead of inline prompts")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	var useEditor bool
	cmd := &cobra.Command{
		Use:   "snapshot QUESTION",
		Short: "Record a new answer version",
		Long:  "Capture a fresh explanation as a new version. Earlier versions are kept; use 'edit' for small fixes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			current, err := a.ledger.CurrentAnswer(ctx, q)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Snapshot: ")+truncate(q.Prompt, 60))
			fields, err := capture.AnswerFields(ctx, a.source(useEditor), false, current)
			if err != nil {
				return err
			}

			_, version, err := a.ledger.Snapshot(ctx, q.ID, fields, a.now)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Saved as version %d.", version)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "use the external editor instead of inline prompts")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var useEditor bool
	cmd := &cobra.Command{
		Use:   "edit QUESTION",
		Short: "Fix the latest answer in place",
		Long:  "Edit the latest answer without creating a new version. Use 'snapshot' to record a new version instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			versions, err := a.ledger.History(ctx, q.ID)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return fmt.Errorf("%w: %s", models.ErrNoAnswer, shortID(q.ID))
			}

			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Editing: ")+truncate(q.Prompt, 60))
			fields, err := capture.AnswerFields(ctx, a.source(useEditor), false, &versions[0].Answer)
			if err != nil {
				return err
			}

			if _, err := a.ledger.MinorEdit(ctx, q.ID, patchFrom(fields), a.now); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Answer updated."))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "use the external editor instead of inline prompts")
	return cmd
}

func patchFrom(f models.AnswerFields) models.AnswerPatch {
	return models.AnswerPatch{
		RawNotes:          &f.RawNotes,
		SimpleExplanation: &f.SimpleExplanation,
		GapsQuestions:     &f.GapsQuestions,
		FinalExplanation:  &f.FinalExplanation,
		AnalogiesExamples: &f.AnalogiesExamples,
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show QUESTION",
		Short: "Show a question with its current answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(out, panel("Question", q.Prompt, colorWarning))
			fmt.Fprintln(out, mutedStyle.Render("ID: "+q.ID))
			fmt.Fprintln(out, mutedStyle.Render("Concept: "+a.conceptName(ctx, q.ConceptID)))
			fmt.Fprintln(out, mutedStyle.Render(scheduleLine(q)))
			fmt.Fprintln(out, mutedStyle.Render("Next review: "+dueLabel(a.now, q.NextReviewAt)))
			if q.Difficulty != nil {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Difficulty: %d/5", *q.Difficulty)))
			}
			if len(q.SourceRefs) > 0 {
				fmt.Fprintln(out, mutedStyle.Render("Sources: "+strings.Join(q.SourceRefs, "; ")))
			}

			answer, err := a.ledger.CurrentAnswer(ctx, q)
			if err != nil {
				return err
			}
			if answer == nil {
				fmt.Fprintln(out, warnStyle.Render("No answer yet. Use 'lerni snapshot' to add one."))
				return nil
			}
			count, err := a.ledger.VersionCount(ctx, q.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printAnswer(out, answer)
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d version(s), current from %s", count, formatTime(answer.CreatedAt))))

			if pending, err := a.reviews.Pending(ctx, q.ID); err != nil {
				return err
			} else if pending != nil {
				fmt.Fprintln(out, warnStyle.Render("Open review "+shortID(pending.ID)+" since "+formatTime(pending.ScheduledFor)))
			}
			return nil
		},
	}
}

func printAnswer(out io.Writer, answer *models.Answer) {
	sections := []struct {
		title string
		body  string
	}{
		{"Raw Notes", answer.RawNotes},
		{"Simple Explanation", answer.SimpleExplanation},
		{"Gaps & Questions", answer.GapsQuestions},
		{"Final Explanation", answer.FinalExplanation},
		{"Analogies & Examples", answer.AnalogiesExamples},
	}
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		fmt.Fprintln(out, panel(s.title, s.body, colorInfo))
	}
}

func scheduleLine(q *models.Question) string {
	return fmt.Sprintf("EF: %.2f | Interval: %s | Reps: %d",
		q.Schedule.EasinessFactor, scheduler.FormatInterval(q.Schedule.Interval), q.Schedule.Repetitions)
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history QUESTION",
		Short: "List answer versions and reviews of a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, headingStyle.Render(truncate(q.Prompt, 70)))

			versions, err := a.ledger.History(ctx, q.ID)
			if err != nil {
				return err
			}
			numbers := make(map[string]int, len(versions))
			t := newTable("Version", "Created", "Raw notes")
			for _, v := range versions {
				numbers[v.Answer.ID] = v.Number
				label := "v" + strconv.Itoa(v.Number)
				if v.Current {
					label += " *"
				}
				t.Row(label, formatTime(v.Answer.CreatedAt), truncate(v.Answer.RawNotes, 50))
			}
			fmt.Fprintln(out, t.Render())

			reviews, err := a.reviews.History(ctx, q.ID)
			if err != nil {
				return err
			}
			if len(reviews) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No reviews yet."))
				return nil
			}
			rt := newTable("Scheduled", "Status", "Grade", "Version", "Gaps")
			for _, r := range reviews {
				grade := "-"
				if r.SelfGrade != nil {
					grade = strconv.Itoa(*r.SelfGrade)
				}
				rt.Row(formatTime(r.ScheduledFor), r.Status.String(), grade, "v"+strconv.Itoa(numbers[r.AnswerID]), truncate(r.GapsIdentified, 30))
			}
			fmt.Fprintln(out, rt.Render())
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete QUESTION",
		Short: "Delete a question with all its answers and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := capture.Confirm(ctx, fmt.Sprintf("Delete %q and its history?", truncate(q.Prompt, 50)), false)
				if err != nil {
					return err
				}
				if !ok {
					return capture.ErrAborted
				}
			}
			if err := a.ledger.Delete(ctx, q.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted "+shortID(q.ID)+"."))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		conceptRef string
		dueOnly    bool
		inbox      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List questions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter := models.QuestionFilter{DueOnly: dueOnly, Uncategorized: inbox, AsOf: a.now}
			if conceptRef != "" {
				if inbox {
					return errors.New("--concept and --inbox cannot be combined")
				}
				c, err := a.graph.Resolve(ctx, conceptRef)
				if err != nil {
					return err
				}
				filter.ConceptID = c.ID
			}

			questions, err := a.ledger.List(ctx, filter)
			if err != nil {
				return err
			}
			a.printQuestions(ctx, cmd.OutOrStdout(), questions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&conceptRef, "concept", "c", "", "only questions filed under this concept")
	cmd.Flags().BoolVar(&dueOnly, "due", false, "only questions due now")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "only questions without a concept")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search TEXT",
		Short: "Find questions whose prompt contains TEXT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			questions, err := a.ledger.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.printQuestions(ctx, cmd.OutOrStdout(), questions)
			return nil
		},
	}
}

func (a *app) printQuestions(ctx context.Context, out io.Writer, questions []models.Question) {
	if len(questions) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No questions."))
		return
	}
	t := newTable("ID", "Question", "Concept", "Next review", "EF")
	for _, q := range questions {
		t.Row(
			idStyle.Render(shortID(q.ID)),
			truncate(q.Prompt, 45),
			truncate(a.conceptName(ctx, q.ConceptID), 15),
			dueLabel(a.now, q.NextReviewAt),
			fmt.Sprintf("%.2f", q.Schedule.EasinessFactor),
		)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d question(s)", len(questions))))
}

func newAssignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign QUESTION CONCEPT",
		Short: "File a question under a concept",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			c, err := a.graph.Resolve(ctx, args[1])
			if err != nil {
				return err
			}
			if _, err := a.ledger.Assign(ctx, q.ID, c.ID, a.now); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Filed under %s.", c.Name)))
			return nil
		},
	}
}

func newUnassignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign QUESTION",
		Short: "Move a question back to the inbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := a.ledger.Unassign(ctx, q.ID, a.now); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Moved to the inbox."))
			return nil
		},
	}
}

func newMetaCmd(a *app) *cobra.Command {
	var (
		difficulty int
		source     string
	)
	cmd := &cobra.Command{
		Use:   "meta QUESTION",
		Short: "Set difficulty or add a source reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var d *int
			if cmd.Flags().Changed("difficulty") {
				d = &difficulty
			}
			if d == nil && strings.TrimSpace(source) == "" {
				return errors.New("nothing to change: pass --difficulty or --source")
			}

			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			q, err = a.ledger.UpdateMeta(ctx, q.ID, d, source, a.now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if q.Difficulty != nil {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Difficulty: %d/5", *q.Difficulty)))
			}
			if len(q.SourceRefs) > 0 {
				fmt.Fprintln(out, mutedStyle.Render("Sources: "+strings.Join(q.SourceRefs, "; ")))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&difficulty, "difficulty", "d", 0, "difficulty from 1 to 5")
	cmd.Flags().StringVarP(&source, "source", "s", "", "source reference to add")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest QUESTION",
		Short: "Propose concepts mentioned in a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			concepts, err := a.graph.List(ctx)
			if err != nil {
				return err
			}
			matches, err := suggest.Suggest(q.Prompt, concepts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No concept is mentioned in this question."))
				return nil
			}
			for _, m := range matches {
				line := idStyle.Render(shortID(m.Concept.ID)) + " " + m.Concept.Name
				if !strings.EqualFold(m.Term, m.Concept.Name) {
					line += mutedStyle.Render(" (via " + m.Term + ")")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

// printSuggestions is a best-effort hint after creating an inbox question.
func (a *app) printSuggestions(ctx context.Context, out io.Writer, q *models.Question) {
	concepts, err := a.graph.List(ctx)
	if err != nil || len(concepts) == 0 {
		return
	}
	matches, err := suggest.Suggest(q.Prompt, concepts)
	if err != nil || len(matches) == 0 {
		return
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Concept.Name
	}
	fmt.Fprintln(out, mutedStyle.Render("Mentions: "+strings.Join(names, ", ")+". File it with 'lerni assign "+shortID(q.ID)+" CONCEPT'."))
}

// conceptOrCreate resolves ref, offering to create a concept named ref when
// nothing matches.
func (a *app) conceptOrCreate(ctx context.Context, out io.Writer, ref string) (*models.Concept, error) {
	c, err := a.graph.Resolve(ctx, ref)
	if err == nil || !errors.Is(err, models.ErrNotFound) {
		return c, err
	}

	ok, err := capture.Confirm(ctx, fmt.Sprintf("Concept %q not found. Create it?", ref), true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, capture.ErrAborted
	}
	c, err = a.graph.Create(ctx, ref, "", nil, a.now)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, successStyle.Render("Created concept "+c.Name+"."))
	return c, nil
}

func (a *app) conceptName(ctx context.Context, id *string) string {
	if id == nil {
		return ""
	}
	c, err := a.graph.Get(ctx, *id)
	if err != nil {
		return shortID(*id)
	}
	return c.Name
}
