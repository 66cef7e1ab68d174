package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/torenunez/lerni/internal/capture"
	"github.com/torenunez/lerni/internal/notify"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
)

func newReviewCmd(a *app) *cobra.Command {
	var useEditor bool
	cmd := &cobra.Command{
		Use:   "review [QUESTION]",
		Short: "Review due questions, or one specific question",
		Long: `Each review has two stages. First explain the answer from memory.
If you could, grade your recall from 3 to 5. If not, your previous
answer is shown, you note what you missed and grade from 0 to 2.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var questions []models.Question
			if len(args) == 1 {
				q, err := a.ledger.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				questions = []models.Question{*q}
			} else {
				due, err := a.ledger.Due(ctx, a.now)
				if err != nil {
					return err
				}
				questions = due
			}

			if len(questions) == 0 {
				fmt.Fprintln(out, successStyle.Render("No questions due for review!"))
				fmt.Fprintln(out, mutedStyle.Render("Use 'lerni today' to see upcoming reviews."))
				return nil
			}

			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Review session: %d question(s)", len(questions))))
			src := a.source(useEditor)
			for i := range questions {
				fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("\n── Question %d/%d ──", i+1, len(questions))))
				if err := a.reviewOne(ctx, out, src, &questions[i]); err != nil {
					return err
				}

				if i < len(questions)-1 {
					more, err := capture.Confirm(ctx, "Continue to the next question?", true)
					if err != nil {
						return err
					}
					if !more {
						fmt.Fprintln(out, mutedStyle.Render("Session paused. Run 'lerni review' to continue."))
						return nil
					}
				}
			}
			fmt.Fprintln(out, successStyle.Render("Review session complete!"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "use the external editor instead of inline prompts")
	return cmd
}

// reviewOne collects all input first and then grades in one write.
func (a *app) reviewOne(ctx context.Context, out io.Writer, src capture.Source, q *models.Question) error {
	answer, err := a.ledger.CurrentAnswer(ctx, q)
	if err != nil {
		return err
	}
	if answer == nil {
		fmt.Fprintln(out, warnStyle.Render("No answer for this question, skipping."))
		return nil
	}

	if q.ConceptID != nil {
		fmt.Fprintln(out, mutedStyle.Render("Concept: "+a.conceptName(ctx, q.ConceptID)))
	}
	if q.Difficulty != nil {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Difficulty: %d/5", *q.Difficulty)))
	}
	fmt.Fprintln(out, mutedStyle.Render(scheduleLine(q)))
	fmt.Fprintln(out, panel("Question", q.Prompt, colorWarning))

	attempt, err := src.Text(ctx, capture.Field{
		Title: "Stage 1: Explain from memory",
		Help: []string{
			"Question: " + q.Prompt,
			"Write what you remember without looking at your notes.",
		},
	})
	if err != nil {
		return err
	}

	recalled, err := capture.Confirm(ctx, "Were you able to explain it from memory?", true)
	if err != nil {
		return err
	}

	ev := models.Evidence{AttemptedExplanation: attempt, RecalledFromMemory: &recalled}
	if !recalled {
		fmt.Fprintln(out, headingStyle.Render("Stage 2: Compare with your previous answer"))
		fmt.Fprintln(out, panel("Your previous explanation", answer.Explanation(), colorInfo))
		if answer.AnalogiesExamples != "" {
			fmt.Fprintln(out, panel("Analogies", answer.AnalogiesExamples, colorAccent))
		}
		if ev.Gaps, err = capture.Line(ctx, "What did you forget or get wrong?"); err != nil {
			return err
		}
	}

	if ev.Grade, err = capture.Grade(ctx, recalled); err != nil {
		return err
	}

	outcome, err := a.reviews.Grade(ctx, q.ID, ev, a.now)
	if err != nil {
		return err
	}

	interval := scheduler.FormatInterval(outcome.Result.State.Interval)
	if outcome.Passed() {
		fmt.Fprintln(out, successStyle.Render("Next review in "+interval+"."))
	} else {
		fmt.Fprintln(out, warnStyle.Render("Needs more practice. Review again in "+interval+"."))
	}
	return nil
}

func newSkipCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "skip QUESTION",
		Short: "Put off a review until tomorrow without affecting its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := a.ledger.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			q, err = a.reviews.SkipQuestion(ctx, q.ID, a.now)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, warnStyle.Render("Skipped: ")+truncate(q.Prompt, 50))
			fmt.Fprintln(out, mutedStyle.Render("Rescheduled for "+formatTime(*q.NextReviewAt)+"."))
			return nil
		},
	}
}

// upcomingLimit caps the upcoming table of 'today'.
const upcomingLimit = 10

func newTodayCmd(a *app) *cobra.Command {
	var lookahead int
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show what is due now and what is coming up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("days") {
				lookahead = a.cfg.Review.LookaheadDays
			}

			s, err := a.agenda.Today(ctx, a.now, lookahead)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, titleStyle.Render("Today's Reviews"))
			if len(s.Due) == 0 {
				fmt.Fprintln(out, successStyle.Render("All caught up! No reviews due today."))
			} else {
				t := newTable("ID", "Question", "Concept", "EF", "Interval")
				for _, q := range s.Due {
					t.Row(
						idStyle.Render(shortID(q.ID)),
						truncate(q.Prompt, 35),
						truncate(a.conceptName(ctx, q.ConceptID), 15),
						fmt.Sprintf("%.2f", q.Schedule.EasinessFactor),
						fmt.Sprintf("%dd", q.Schedule.Interval),
					)
				}
				fmt.Fprintln(out, t.Render())
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%d question(s) due for review", len(s.Due))))
				fmt.Fprintln(out, mutedStyle.Render("Run 'lerni review' to start."))
			}

			if len(s.Upcoming) == 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("No reviews scheduled in the next %d days.", lookahead)))
			} else {
				fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("\nUpcoming (%d days)", lookahead)))
				t := newTable("ID", "Question", "Due")
				for i, q := range s.Upcoming {
					if i == upcomingLimit {
						break
					}
					t.Row(idStyle.Render(shortID(q.ID)), truncate(q.Prompt, 40), dueLabel(a.now, q.NextReviewAt))
				}
				fmt.Fprintln(out, t.Render())
				if extra := len(s.Upcoming) - upcomingLimit; extra > 0 {
					fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("...and %d more", extra)))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lookahead, "days", "d", 0, "lookahead window in days (default from config)")
	return cmd
}

func newNotifyCmd(a *app) *cobra.Command {
	var setup bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a desktop notification with today's review summary",
		Long:  "Shows a macOS notification when questions are due. Use --setup for daily scheduling instructions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if setup {
				printNotifySetup(out, a.cfg.Notifications.ReminderTime)
				return nil
			}
			if !a.cfg.Notifications.Enabled {
				fmt.Fprintln(out, mutedStyle.Render("Notifications are disabled in config."))
				return nil
			}

			counts, err := a.agenda.Counts(ctx, a.now, a.cfg.Review.LookaheadDays)
			if err != nil {
				return err
			}
			msg, ok := notify.ComposeCount(counts.Due, counts.FirstDuePrompt)
			if !ok {
				fmt.Fprintln(out, successStyle.Render("No questions due for review."))
				return nil
			}

			if err := (notify.OSAScript{}).Send(ctx, msg); err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("Notification sent: ")+msg.Body)
			return nil
		},
	}
	cmd.Flags().BoolVar(&setup, "setup", false, "show cron and launchd setup instructions")
	return cmd
}

func printNotifySetup(out io.Writer, reminder string) {
	bin, err := os.Executable()
	if err != nil {
		bin = "lerni"
	}
	home, _ := os.UserHomeDir()
	plistPath := filepath.Join(home, "Library", "LaunchAgents", notify.LaunchdLabel+".plist")

	fmt.Fprintln(out, titleStyle.Render("Daily Notification Setup"))
	fmt.Fprintln(out, headingStyle.Render("\nOption 1: crontab"))
	fmt.Fprintln(out, "Add this line with 'crontab -e':")
	fmt.Fprintln(out, successStyle.Render(notify.CronLine(reminder, bin)))

	fmt.Fprintln(out, headingStyle.Render("\nOption 2: launchd (recommended on macOS)"))
	fmt.Fprintln(out, "Save as "+plistPath+":")
	fmt.Fprintln(out, mutedStyle.Render(notify.LaunchdPlist(reminder, bin)))
	fmt.Fprintln(out, "Then load it with:")
	fmt.Fprintln(out, successStyle.Render("launchctl load "+plistPath))

	fmt.Fprintln(out, mutedStyle.Render("\nReminder time from config: "+reminder))
}
