// Package capture collects text from the user, either inline through
// terminal forms or in an external editor.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
)

// ErrAborted means the user gave up or left a required field empty.
var ErrAborted = errors.New("aborted")

// Field is one piece of text to collect.
type Field struct {
	Title    string
	Help     []string
	Initial  string
	Required bool
}

// Source collects a Field. Results are trimmed.
type Source interface {
	Text(ctx context.Context, f Field) (string, error)
}

// Inline collects text with a multi-line form in the terminal.
type Inline struct{}

func (Inline) Text(ctx context.Context, f Field) (string, error) {
	value := f.Initial
	input := huh.NewText().
		Title(f.Title).
		Description(strings.Join(f.Help, "\n")).
		Value(&value)
	if f.Required {
		input = input.Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("required")
			}
			return nil
		})
	}

	if err := run(ctx, huh.NewForm(huh.NewGroup(input))); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Confirm asks a yes/no question.
func Confirm(ctx context.Context, title string, def bool) (bool, error) {
	answer := def
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Value(&answer),
	))
	if err := run(ctx, form); err != nil {
		return false, err
	}
	return answer, nil
}

// Line asks for a single line of optional text.
func Line(ctx context.Context, title string) (string, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(title).Value(&value),
	))
	if err := run(ctx, form); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// GradeChoices lists the grades on offer. A user who recalled the answer
// picks from the passing grades, otherwise from the failing ones.
func GradeChoices(recalled bool) []int {
	if recalled {
		return []int{3, 4, 5}
	}
	return []int{0, 1, 2}
}

// Grade asks for a self-assessed recall grade.
func Grade(ctx context.Context, recalled bool) (int, error) {
	choices := GradeChoices(recalled)
	options := make([]huh.Option[int], 0, len(choices))
	for _, g := range choices {
		options = append(options, huh.NewOption(fmt.Sprintf("%d: %s", g, scheduler.GradeDescription(g)), g))
	}

	grade := choices[len(choices)-1]
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title("Your grade").Options(options...).Value(&grade),
	))
	if err := run(ctx, form); err != nil {
		return 0, err
	}
	return grade, nil
}

func run(ctx context.Context, form *huh.Form) error {
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("form failed: %w", err)
	}
	return nil
}

// PromptField is the question text of a new question.
var PromptField = Field{
	Title: "Question",
	Help: []string{
		"Write a question that tests understanding of a concept.",
		"It is shown during review while your answer stays hidden.",
	},
	Required: true,
}

// AnswerFields runs the Feynman steps and returns the answer. quick stops
// after the raw notes. initial, when set, pre-fills every step.
func AnswerFields(ctx context.Context, src Source, quick bool, initial *models.Answer) (models.AnswerFields, error) {
	var prev models.AnswerFields
	if initial != nil {
		prev = initial.Fields()
	}

	var out models.AnswerFields
	steps := []struct {
		field Field
		dst   *string
	}{
		{Field{Title: "Step 1/4: Raw Notes", Help: []string{"Write everything you know about this topic.", "Don't worry about organization."}, Initial: prev.RawNotes, Required: true}, &out.RawNotes},
		{Field{Title: "Step 2/4: Simple Explanation", Help: []string{"Explain it as if teaching someone who knows nothing about it."}, Initial: prev.SimpleExplanation}, &out.SimpleExplanation},
		{Field{Title: "Step 3/4: Gaps & Questions", Help: []string{"What did you struggle to explain? What needs more research?"}, Initial: prev.GapsQuestions}, &out.GapsQuestions},
		{Field{Title: "Step 4/4: Final Explanation", Help: []string{"Write the refined explanation."}, Initial: prev.FinalExplanation}, &out.FinalExplanation},
		{Field{Title: "Analogies & Examples", Help: []string{"Real-world analogies or concrete examples."}, Initial: prev.AnalogiesExamples}, &out.AnalogiesExamples},
	}

	for i, step := range steps {
		if quick && i > 0 {
			break
		}
		text, err := src.Text(ctx, step.field)
		if err != nil {
			return models.AnswerFields{}, err
		}
		if step.field.Required && text == "" {
			return models.AnswerFields{}, fmt.Errorf("%w: %s is required", ErrAborted, step.field.Title)
		}
		*step.dst = text
	}
	return out, nil
}
