package review

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/ledger"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateDue(context.Context) error {
	c.calls++
	return nil
}

type fixture struct {
	store   *sqlite.Client
	ledger  *ledger.Ledger
	reviews *Service
	cache   *countingInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "lerni.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	cache := &countingInvalidator{}
	return &fixture{
		store:   store,
		ledger:  ledger.New(store),
		reviews: New(store, WithInvalidator(cache)),
		cache:   cache,
	}
}

func (f *fixture) question(t *testing.T, prompt string) *models.Question {
	t.Helper()
	q, _, err := f.ledger.CreateWithAnswer(context.Background(), prompt, nil, models.AnswerFields{RawNotes: "notes"}, t0)
	require.NoError(t, err)
	return q
}

func TestStartComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain closures")
	now := t0.Add(time.Hour)

	r, err := f.reviews.Start(ctx, q.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, r.Status)
	assert.Equal(t, *q.CurrentAnswerID, r.AnswerID)
	assert.True(t, t0.Equal(r.ScheduledFor))

	pending, err := f.reviews.Pending(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, r.ID, pending.ID)

	recalled := true
	out, err := f.reviews.Complete(ctx, r.ID, models.Evidence{
		Grade:                5,
		AttemptedExplanation: "functions capturing scope",
		RecalledFromMemory:   &recalled,
	}, now)
	require.NoError(t, err)
	assert.True(t, out.Passed())
	assert.Equal(t, models.ReviewCompleted, out.Review.Status)
	require.NotNil(t, out.Review.CompletedAt)
	assert.True(t, now.Equal(*out.Review.CompletedAt))
	assert.Equal(t, 1, f.cache.calls)

	got, err := f.ledger.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Schedule.Repetitions)
	assert.Equal(t, 1, got.Schedule.Interval)
	assert.InDelta(t, 2.6, got.Schedule.EasinessFactor, 1e-9)
	assert.True(t, now.Add(24*time.Hour).Equal(*got.NextReviewAt))

	_, err = f.reviews.Complete(ctx, r.ID, models.Evidence{Grade: 3}, now)
	assert.ErrorIs(t, err, models.ErrReviewClosed)
	_, err = f.reviews.Skip(ctx, r.ID, now)
	assert.ErrorIs(t, err, models.ErrReviewClosed)
}

func TestComplete_InvalidGradeWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain generics")

	r, err := f.reviews.Start(ctx, q.ID, t0)
	require.NoError(t, err)

	for _, grade := range []int{-1, 6} {
		_, err = f.reviews.Complete(ctx, r.ID, models.Evidence{Grade: grade}, t0)
		assert.ErrorIs(t, err, scheduler.ErrInvalidGrade)
	}

	still, err := f.store.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, still.Status)
	assert.Nil(t, still.SelfGrade)

	got, err := f.ledger.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.NewState(), got.Schedule)
}

func TestSkip_PreservesSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain interfaces")

	// Build up some history first.
	_, err := f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 4}, t0)
	require.NoError(t, err)
	_, err = f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 4}, t0.Add(24*time.Hour))
	require.NoError(t, err)
	before, err := f.ledger.Get(ctx, q.ID)
	require.NoError(t, err)

	now := t0.Add(72 * time.Hour)
	r, err := f.reviews.Start(ctx, q.ID, now)
	require.NoError(t, err)
	after, err := f.reviews.Skip(ctx, r.ID, now)
	require.NoError(t, err)

	assert.Equal(t, before.Schedule, after.Schedule)
	assert.True(t, now.Add(24*time.Hour).Equal(*after.NextReviewAt))

	closed, err := f.store.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewSkipped, closed.Status)
	assert.Nil(t, closed.SelfGrade)
	require.NotNil(t, closed.CompletedAt)
}

func TestGrade_Failure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain monads")

	out, err := f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 5}, t0)
	require.NoError(t, err)
	out, err = f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 1, Gaps: "bind"}, t0.Add(24*time.Hour))
	require.NoError(t, err)

	assert.False(t, out.Passed())
	assert.Equal(t, 0, out.Question.Schedule.Repetitions)
	assert.Equal(t, 1, out.Question.Schedule.Interval)
	assert.Equal(t, "bind", out.Review.GapsIdentified)

	history, err := f.reviews.History(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestReviewPinsAnswerVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain channels")

	r, err := f.reviews.Start(ctx, q.ID, t0)
	require.NoError(t, err)

	_, _, err = f.ledger.Snapshot(ctx, q.ID, models.AnswerFields{RawNotes: "typed pipes"}, t0.Add(time.Minute))
	require.NoError(t, err)

	got, err := f.store.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, *q.CurrentAnswerID, got.AnswerID)
}

func TestStart_NoAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q, err := f.ledger.Create(ctx, "Unanswered", nil, t0)
	require.NoError(t, err)

	_, err = f.reviews.Start(ctx, q.ID, t0)
	assert.ErrorIs(t, err, models.ErrNoAnswer)

	_, err = f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 4}, t0)
	assert.ErrorIs(t, err, models.ErrNoAnswer)

	reviews, err := f.reviews.History(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestSkipQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	answered := f.question(t, "Explain goroutines")
	bare, err := f.ledger.Create(ctx, "Explain select", nil, t0)
	require.NoError(t, err)
	now := t0.Add(time.Hour)

	q, err := f.reviews.SkipQuestion(ctx, answered.ID, now)
	require.NoError(t, err)
	assert.True(t, now.Add(SkipDelay).Equal(*q.NextReviewAt))
	assert.Equal(t, scheduler.NewState(), q.Schedule)

	history, err := f.reviews.History(ctx, answered.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ReviewSkipped, history[0].Status)

	q, err = f.reviews.SkipQuestion(ctx, bare.ID, now)
	require.NoError(t, err)
	assert.True(t, now.Add(SkipDelay).Equal(*q.NextReviewAt))

	history, err = f.reviews.History(ctx, bare.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.reviews.SkipQuestion(ctx, "ffff0000-0000-4000-8000-000000000000", now)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGrade_LongPerfectStreakStaysScheduledAhead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.question(t, "Explain escape analysis")

	var out *Outcome
	var err error
	for i := 0; i < 15; i++ {
		out, err = f.reviews.Grade(ctx, q.ID, models.Evidence{Grade: 5}, t0)
		require.NoError(t, err)
	}
	assert.Equal(t, scheduler.MaxInterval, out.Question.Schedule.Interval)

	got, err := f.ledger.Get(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextReviewAt)
	assert.True(t, t0.AddDate(0, 0, scheduler.MaxInterval).Equal(*got.NextReviewAt))

	due, err := f.ledger.Due(ctx, t0.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
}
