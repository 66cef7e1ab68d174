package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/storage/models"
)

func ids(questions []models.Question) []string {
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.ID)
	}
	return out
}

func TestDueAndUpcomingQuestions(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	day := 24 * time.Hour

	mustQuestion(t, c, id("aaaa0001"), "due now", at(0))
	mustQuestion(t, c, id("aaaa0002"), "overdue", at(-3*day))
	mustQuestion(t, c, id("aaaa0003"), "tomorrow", at(day))
	mustQuestion(t, c, id("aaaa0004"), "in a week", at(7*day))
	mustQuestion(t, c, id("aaaa0005"), "in eight days", at(8*day))
	mustQuestion(t, c, id("aaaa0006"), "unscheduled", nil)

	due, err := c.DueQuestions(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0002"), id("aaaa0001")}, ids(due))

	upcoming, err := c.UpcomingQuestions(ctx, t0, t0.Add(7*day))
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0003"), id("aaaa0004")}, ids(upcoming))
}

func TestListAndSearchQuestions(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	concept := mustConcept(t, c, id("cccc0001"), "Networking")

	tcp := mustQuestion(t, c, id("aaaa0001"), "How does TCP slow start work?", at(time.Hour))
	tcp.ConceptID = &concept.ID
	tcp.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, c.UpdateQuestion(ctx, tcp))
	mustQuestion(t, c, id("aaaa0002"), "What is 100% CPU steal?", at(-time.Hour))

	all, err := c.ListQuestions(ctx, models.QuestionFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0001"), id("aaaa0002")}, ids(all))

	due, err := c.ListQuestions(ctx, models.QuestionFilter{DueOnly: true, AsOf: t0})
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0002")}, ids(due))

	byConcept, err := c.ListQuestions(ctx, models.QuestionFilter{ConceptID: concept.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0001")}, ids(byConcept))

	inbox, err := c.UncategorizedQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0002")}, ids(inbox))

	found, err := c.SearchQuestions(ctx, "tcp")
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0001")}, ids(found))

	found, err = c.SearchQuestions(ctx, "100%")
	require.NoError(t, err)
	assert.Equal(t, []string{id("aaaa0002")}, ids(found))

	n, err := c.CountQuestionsForConcept(ctx, concept.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAnswers_NewestFirstWithTies(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	q := mustQuestion(t, c, id("aaaa0001"), "Explain monads", at(0))

	for i, notes := range []string{"v1", "v2", "v3"} {
		a := &models.Answer{
			ID:         id("bbbb000" + string(rune('1'+i))),
			QuestionID: q.ID,
			RawNotes:   notes,
			CreatedAt:  t0, // identical timestamps
		}
		require.NoError(t, c.InsertAnswer(ctx, a))
	}

	latest, err := c.LatestAnswer(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "v3", latest.RawNotes)

	all, err := c.AnswersForQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "v3", all[0].RawNotes)
	assert.Equal(t, "v1", all[2].RawNotes)

	none, err := c.LatestAnswer(ctx, id("dead0001"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReviews_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	q := mustQuestion(t, c, id("aaaa0001"), "Explain CAP", at(0))
	require.NoError(t, c.InsertAnswer(ctx, &models.Answer{ID: id("bbbb0001"), QuestionID: q.ID, RawNotes: "C, A, P", CreatedAt: t0}))

	pending := &models.Review{
		ID: id("cccc0001"), QuestionID: q.ID, AnswerID: id("bbbb0001"),
		ScheduledFor: t0, Status: models.ReviewPending,
	}
	require.NoError(t, c.InsertReview(ctx, pending))

	open, err := c.PendingReview(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, pending.ID, open.ID)

	recalled := true
	ev := models.Evidence{Grade: 4, AttemptedExplanation: "pick two", RecalledFromMemory: &recalled}
	require.NoError(t, c.CompleteReview(ctx, pending.ID, ev, t0.Add(time.Minute)))

	got, err := c.GetReview(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewCompleted, got.Status)
	require.NotNil(t, got.SelfGrade)
	assert.Equal(t, 4, *got.SelfGrade)
	require.NotNil(t, got.RecalledFromMemory)
	assert.True(t, *got.RecalledFromMemory)
	assert.Equal(t, "pick two", got.AttemptedExplanation)
	assert.Empty(t, got.GapsIdentified)
	assert.Nil(t, got.AISessionID)

	err = c.SkipReview(ctx, pending.ID, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, models.ErrReviewClosed)
	err = c.CompleteReview(ctx, pending.ID, models.Evidence{Grade: 1}, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, models.ErrReviewClosed)

	err = c.SkipReview(ctx, id("dead0001"), t0)
	assert.ErrorIs(t, err, models.ErrNotFound)

	open, err = c.PendingReview(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestDeleteQuestion_CascadesAnswersAndReviews(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	q := mustQuestion(t, c, id("aaaa0001"), "Explain Raft", at(0))
	require.NoError(t, c.InsertAnswer(ctx, &models.Answer{ID: id("bbbb0001"), QuestionID: q.ID, RawNotes: "leader", CreatedAt: t0}))
	require.NoError(t, c.InsertReview(ctx, &models.Review{
		ID: id("cccc0001"), QuestionID: q.ID, AnswerID: id("bbbb0001"), ScheduledFor: t0, Status: models.ReviewPending,
	}))

	removed, err := c.DeleteQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := c.CountAnswers(ctx, q.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	reviews, err := c.ReviewsForQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestReviewStatus_UnknownTagFailsFast(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	q := mustQuestion(t, c, id("aaaa0001"), "Explain Paxos", at(0))
	require.NoError(t, c.InsertAnswer(ctx, &models.Answer{ID: id("bbbb0001"), QuestionID: q.ID, RawNotes: "quorum", CreatedAt: t0}))

	_, err := c.db.Exec(`INSERT INTO reviews (id, question_id, answer_id, scheduled_for, status) VALUES (?, ?, ?, ?, ?)`,
		id("cccc0001"), q.ID, id("bbbb0001"), unixMicro(t0), "abandoned")
	require.NoError(t, err)

	_, err = c.GetReview(ctx, id("cccc0001"))
	assert.ErrorIs(t, err, models.ErrUnknownTag)
}
