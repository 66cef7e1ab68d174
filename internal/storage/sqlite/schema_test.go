package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/scheduler"
	"github.com/torenunez/lerni/internal/storage/models"
)

const legacyV2Fixture = `
CREATE TABLE schema_version (version INTEGER PRIMARY KEY);
INSERT INTO schema_version (version) VALUES (2);

CREATE TABLE topics (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	current_version_id TEXT,
	next_review_at TEXT,
	schedule_state TEXT NOT NULL,
	metadata TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE topic_versions (
	id TEXT PRIMARY KEY,
	topic_id TEXT NOT NULL,
	raw_notes TEXT NOT NULL,
	simple_explanation TEXT,
	gaps_questions TEXT,
	final_explanation TEXT,
	analogies_examples TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE reviews (
	id TEXT PRIMARY KEY,
	topic_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	scheduled_for TEXT NOT NULL,
	completed_at TEXT,
	status TEXT NOT NULL,
	self_grade INTEGER,
	attempted_explanation TEXT,
	recalled_from_memory INTEGER,
	gaps_identified TEXT,
	notes TEXT,
	ai_session_id TEXT
);

INSERT INTO topics VALUES (
	'aaaa0001-0000-4000-8000-000000000000',
	'Why is the sky blue?',
	'bbbb0001-0000-4000-8000-000000000000',
	'2025-06-15T10:00:00',
	'{"easiness_factor": 2.6, "interval": 1, "repetitions": 1}',
	'{"difficulty": 3, "source_refs": ["Feynman Lectures"]}',
	'2025-06-14T10:00:00',
	'2025-06-14T10:00:00'
);

INSERT INTO topic_versions VALUES (
	'bbbb0001-0000-4000-8000-000000000000',
	'aaaa0001-0000-4000-8000-000000000000',
	'Rayleigh scattering',
	'Short wavelengths scatter more',
	NULL, NULL, NULL,
	'2025-06-14T10:00:00'
);

INSERT INTO reviews VALUES (
	'cccc0001-0000-4000-8000-000000000000',
	'aaaa0001-0000-4000-8000-000000000000',
	'bbbb0001-0000-4000-8000-000000000000',
	'2025-06-14T11:00:00',
	'2025-06-14T11:05:00',
	'COMPLETED',
	5, 'scattering', 1, NULL, NULL, NULL
);
`

func TestMigrate_FromVersion2(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(t.TempDir() + "/legacy.db")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.db.Exec(legacyV2Fixture)
	require.NoError(t, err)

	v, err := c.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	require.NoError(t, c.Migrate(ctx))

	v, err = c.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	q, err := c.GetQuestion(ctx, id("aaaa0001"))
	require.NoError(t, err)
	assert.Equal(t, "Why is the sky blue?", q.Prompt)
	assert.Nil(t, q.ConceptID)
	require.NotNil(t, q.CurrentAnswerID)
	assert.Equal(t, id("bbbb0001"), *q.CurrentAnswerID)
	require.NotNil(t, q.NextReviewAt)
	assert.True(t, t0.Equal(*q.NextReviewAt))
	assert.Equal(t, scheduler.State{EasinessFactor: 2.6, Interval: 1, Repetitions: 1}, q.Schedule)
	require.NotNil(t, q.Difficulty)
	assert.Equal(t, 3, *q.Difficulty)
	assert.Equal(t, []string{"Feynman Lectures"}, q.SourceRefs)

	a, err := c.LatestAnswer(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Rayleigh scattering", a.RawNotes)
	assert.Equal(t, "Short wavelengths scatter more", a.SimpleExplanation)

	reviews, err := c.ReviewsForQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, models.ReviewCompleted, reviews[0].Status)
	require.NotNil(t, reviews[0].SelfGrade)
	assert.Equal(t, 5, *reviews[0].SelfGrade)
	require.NotNil(t, reviews[0].CompletedAt)

	// The concept graph exists and is empty after the upgrade.
	n, err := c.CountConcepts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.Migrate(ctx))
}

func TestMigrate_UnknownVersion(t *testing.T) {
	c, err := NewClient(t.TempDir() + "/old.db")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY); INSERT INTO schema_version VALUES (1);`)
	require.NoError(t, err)

	err = c.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migration path")
}
