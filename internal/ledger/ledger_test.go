package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/metrics"
	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateDue(context.Context) error {
	c.calls++
	return c.err
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *sqlite.Client) {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "lerni.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return New(store, opts...), store
}

func notes(s string) models.AnswerFields {
	return models.AnswerFields{RawNotes: s}
}

func mustConcept(t *testing.T, store *sqlite.Client, name string) *models.Concept {
	t.Helper()
	c := &models.Concept{ID: "cccc" + name[:1] + "000-0000-4000-8000-000000000000", Name: name, CreatedAt: t0}
	require.NoError(t, store.InsertConcept(context.Background(), c))
	return c
}

func TestCreate_IsImmediatelyDue(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	l, _ := newTestLedger(t, WithInvalidator(inv))

	q, err := l.Create(ctx, "  What is a monad?  ", nil, t0)
	require.NoError(t, err)
	assert.Equal(t, "What is a monad?", q.Prompt)
	assert.Equal(t, scheduler.NewState(), q.Schedule)
	require.NotNil(t, q.NextReviewAt)
	assert.True(t, t0.Equal(*q.NextReviewAt))
	assert.True(t, q.Uncategorized())
	assert.Nil(t, q.CurrentAnswerID)
	assert.Equal(t, 1, inv.calls)

	due, err := l.Due(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, q.ID, due[0].ID)

	_, err = l.Create(ctx, " \n ", nil, t0)
	assert.ErrorIs(t, err, models.ErrEmptyPrompt)

	missing := "dddd0000-0000-4000-8000-000000000000"
	_, err = l.Create(ctx, "Orphan?", &missing, t0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInvalidatorFailureIsNotFatal(t *testing.T) {
	l, _ := newTestLedger(t, WithInvalidator(&countingInvalidator{err: errors.New("redis down")}))

	_, err := l.Create(context.Background(), "Still works?", nil, t0)
	assert.NoError(t, err)
}

func TestSnapshot_AddsVersionAndRepoints(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	q, first, err := l.CreateWithAnswer(ctx, "Explain TCP", nil, notes("three-way handshake"), t0)
	require.NoError(t, err)
	require.NotNil(t, q.CurrentAnswerID)
	assert.Equal(t, first.ID, *q.CurrentAnswerID)

	second, version, err := l.Snapshot(ctx, q.ID, models.AnswerFields{
		RawNotes:          "SYN, SYN-ACK, ACK",
		SimpleExplanation: "Both sides agree to talk",
	}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	got, err := l.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *got.CurrentAnswerID)
	assert.True(t, t0.Add(time.Hour).Equal(got.UpdatedAt))

	old, err := store.GetAnswer(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "three-way handshake", old.RawNotes)

	history, err := l.History(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Number)
	assert.True(t, history[0].Current)
	assert.Equal(t, "SYN, SYN-ACK, ACK", history[0].Answer.RawNotes)
	assert.Equal(t, 1, history[1].Number)
	assert.False(t, history[1].Current)

	_, _, err = l.Snapshot(ctx, q.ID, notes("   "), t0)
	assert.ErrorIs(t, err, models.ErrEmptyNotes)
	n, err := l.VersionCount(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreateWithAnswer_RollsBackOnEmptyNotes(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	metrics.Init()
	createdBefore := testutil.ToFloat64(metrics.QuestionsCreated)
	snapshotsBefore := testutil.ToFloat64(metrics.SnapshotsTotal)

	_, _, err := l.CreateWithAnswer(ctx, "Explain UDP", nil, notes(""), t0)
	assert.ErrorIs(t, err, models.ErrEmptyNotes)

	all, err := l.List(ctx, models.QuestionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, createdBefore, testutil.ToFloat64(metrics.QuestionsCreated))
	assert.Equal(t, snapshotsBefore, testutil.ToFloat64(metrics.SnapshotsTotal))

	_, _, err = l.CreateWithAnswer(ctx, "Explain UDP", nil, notes("datagrams"), t0)
	require.NoError(t, err)
	assert.Equal(t, createdBefore+1, testutil.ToFloat64(metrics.QuestionsCreated))
	assert.Equal(t, snapshotsBefore+1, testutil.ToFloat64(metrics.SnapshotsTotal))
}

func TestAnswerWritesInvalidateDueCache(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	l, _ := newTestLedger(t, WithInvalidator(inv))

	q, err := l.Create(ctx, "Explain ICMP", nil, t0)
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)

	_, err = l.AttachInitialAnswer(ctx, q.ID, notes("control messages"), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.calls)

	_, _, err = l.Snapshot(ctx, q.ID, notes("echo and unreachable"), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, inv.calls)

	_, _, err = l.Snapshot(ctx, q.ID, notes(" "), t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, models.ErrEmptyNotes)
	assert.Equal(t, 3, inv.calls)
}

func TestAttachInitialAnswer(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	q, err := l.Create(ctx, "Explain DNS", nil, t0)
	require.NoError(t, err)

	a, err := l.AttachInitialAnswer(ctx, q.ID, notes("names to addresses"), t0)
	require.NoError(t, err)

	current, err := l.CurrentAnswer(ctx, mustGet(t, l, q.ID))
	require.NoError(t, err)
	assert.Equal(t, a.ID, current.ID)

	_, err = l.AttachInitialAnswer(ctx, q.ID, notes("again"), t0)
	assert.ErrorIs(t, err, models.ErrConstraintViolation)
}

func mustGet(t *testing.T, l *Ledger, id string) *models.Question {
	t.Helper()
	q, err := l.Get(context.Background(), id)
	require.NoError(t, err)
	return q
}

func TestMinorEdit_ChangesLatestInPlace(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	q, _, err := l.CreateWithAnswer(ctx, "Explain ARP", nil, notes("ip to mac"), t0)
	require.NoError(t, err)

	simple := "Asks the LAN who owns an IP"
	edited, err := l.MinorEdit(ctx, q.ID, models.AnswerPatch{SimpleExplanation: &simple}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "ip to mac", edited.RawNotes)
	assert.Equal(t, simple, edited.SimpleExplanation)

	n, err := l.VersionCount(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	blank := "  "
	_, err = l.MinorEdit(ctx, q.ID, models.AnswerPatch{RawNotes: &blank}, t0)
	assert.ErrorIs(t, err, models.ErrEmptyNotes)

	history, err := l.History(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "ip to mac", history[0].Answer.RawNotes)

	bare, err := l.Create(ctx, "No answer yet", nil, t0)
	require.NoError(t, err)
	_, err = l.MinorEdit(ctx, bare.ID, models.AnswerPatch{SimpleExplanation: &simple}, t0)
	assert.ErrorIs(t, err, models.ErrNoAnswer)
}

func TestCurrentAnswer_StalePointerFallsBack(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	q, a, err := l.CreateWithAnswer(ctx, "Explain NAT", nil, notes("rewrite addresses"), t0)
	require.NoError(t, err)

	stale := "eeee0000-0000-4000-8000-000000000000"
	q.CurrentAnswerID = &stale
	got, err := l.CurrentAnswer(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	bare, err := l.Create(ctx, "Nothing", nil, t0)
	require.NoError(t, err)
	got, err = l.CurrentAnswer(ctx, bare)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDueWithin_OpenLowerBound(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	day := 24 * time.Hour

	schedule := func(prompt string, at time.Time) {
		q, err := l.Create(ctx, prompt, nil, t0)
		require.NoError(t, err)
		q.NextReviewAt = &at
		require.NoError(t, store.UpdateQuestion(ctx, q))
	}
	schedule("due now", t0)
	schedule("in 3 days", t0.Add(3*day))
	schedule("in exactly 7 days", t0.Add(7*day))
	schedule("in 7 days and a second", t0.Add(7*day+time.Second))

	upcoming, err := l.DueWithin(ctx, 7, t0)
	require.NoError(t, err)
	prompts := make([]string, 0, len(upcoming))
	for _, q := range upcoming {
		prompts = append(prompts, q.Prompt)
	}
	assert.Equal(t, []string{"in 3 days", "in exactly 7 days"}, prompts)

	none, err := l.DueWithin(ctx, 0, t0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = l.DueWithin(ctx, -1, t0)
	assert.Error(t, err)
}

func TestAssignAndUnassign(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)
	concept := mustConcept(t, store, "Networking")

	q, err := l.Create(ctx, "Explain BGP", nil, t0)
	require.NoError(t, err)

	q, err = l.Assign(ctx, q.ID, concept.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, q.ConceptID)
	assert.Equal(t, concept.ID, *q.ConceptID)

	filed, err := l.ForConcept(ctx, concept.ID)
	require.NoError(t, err)
	assert.Len(t, filed, 1)

	inbox, err := l.Uncategorized(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	_, err = l.Assign(ctx, q.ID, "ffff0000-0000-4000-8000-000000000000", t0)
	assert.ErrorIs(t, err, models.ErrNotFound)

	q, err = l.Unassign(ctx, q.ID, t0)
	require.NoError(t, err)
	assert.Nil(t, q.ConceptID)
}

func TestUpdateMeta(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	q, err := l.Create(ctx, "Explain QUIC", nil, t0)
	require.NoError(t, err)

	three := 3
	q, err = l.UpdateMeta(ctx, q.ID, &three, "RFC 9000", t0)
	require.NoError(t, err)
	q, err = l.UpdateMeta(ctx, q.ID, nil, " RFC 9000 ", t0)
	require.NoError(t, err)
	q, err = l.UpdateMeta(ctx, q.ID, nil, "Cloudflare blog", t0)
	require.NoError(t, err)

	require.NotNil(t, q.Difficulty)
	assert.Equal(t, 3, *q.Difficulty)
	assert.Equal(t, []string{"RFC 9000", "Cloudflare blog"}, q.SourceRefs)

	for _, bad := range []int{0, 6} {
		d := bad
		_, err = l.UpdateMeta(ctx, q.ID, &d, "", t0)
		assert.ErrorIs(t, err, models.ErrInvalidDifficulty)
	}
}

func TestDeleteAndSearch(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	q, _, err := l.CreateWithAnswer(ctx, "Explain HTTP/2 multiplexing", nil, notes("streams"), t0)
	require.NoError(t, err)

	found, err := l.Search(ctx, "http/2")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	resolved, err := l.Resolve(ctx, q.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, q.ID, resolved.ID)

	require.NoError(t, l.Delete(ctx, q.ID))
	assert.ErrorIs(t, l.Delete(ctx, q.ID), models.ErrNotFound)

	_, err = l.History(ctx, q.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
