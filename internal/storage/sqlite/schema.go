package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/pkg/logger"
)

// SchemaVersion is the layout this package reads and writes.
const SchemaVersion = 3

const ddlVersion = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const ddlConcepts = `
CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE,
	aliases TEXT NOT NULL,
	description TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS concept_edges (
	from_concept_id TEXT NOT NULL,
	to_concept_id TEXT NOT NULL,
	relationship TEXT NOT NULL,
	PRIMARY KEY (from_concept_id, to_concept_id, relationship),
	FOREIGN KEY (from_concept_id) REFERENCES concepts(id) ON DELETE CASCADE,
	FOREIGN KEY (to_concept_id) REFERENCES concepts(id) ON DELETE CASCADE,
	CHECK (from_concept_id != to_concept_id)
);
`

const ddlQuestions = `
CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	concept_id TEXT,
	prompt TEXT NOT NULL,
	current_answer_id TEXT,
	next_review_at INTEGER,
	schedule_state TEXT NOT NULL,
	difficulty INTEGER,
	source_refs TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (concept_id) REFERENCES concepts(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS answers (
	id TEXT PRIMARY KEY,
	question_id TEXT NOT NULL,
	raw_notes TEXT NOT NULL,
	simple_explanation TEXT,
	gaps_questions TEXT,
	final_explanation TEXT,
	analogies_examples TEXT,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
);
`

// ddlReviews is parameterized by table name so the migration can build the
// new table next to the legacy one.
const ddlReviews = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	question_id TEXT NOT NULL,
	answer_id TEXT NOT NULL,
	scheduled_for INTEGER NOT NULL,
	completed_at INTEGER,
	status TEXT NOT NULL,
	self_grade INTEGER,
	attempted_explanation TEXT,
	recalled_from_memory INTEGER,
	gaps_identified TEXT,
	notes TEXT,
	ai_session_id TEXT,
	FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE,
	FOREIGN KEY (answer_id) REFERENCES answers(id)
);
`

const ddlIndexes = `
CREATE INDEX IF NOT EXISTS idx_questions_next_review ON questions(next_review_at);
CREATE INDEX IF NOT EXISTS idx_questions_concept ON questions(concept_id);
CREATE INDEX IF NOT EXISTS idx_concepts_name ON concepts(name);
CREATE INDEX IF NOT EXISTS idx_reviews_status ON reviews(status);
CREATE INDEX IF NOT EXISTS idx_reviews_question ON reviews(question_id);
CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);
CREATE INDEX IF NOT EXISTS idx_concept_edges_from ON concept_edges(from_concept_id);
CREATE INDEX IF NOT EXISTS idx_concept_edges_to ON concept_edges(to_concept_id);
`

var schemaV3 = ddlVersion + ddlConcepts + ddlQuestions + fmt.Sprintf(ddlReviews, "reviews") + ddlIndexes

// legacyTime converts a version-2 ISO-8601 text timestamp column into Unix
// microseconds.
const legacyTime = `CAST(strftime('%%s', %[1]s) AS INTEGER) * 1000000`

func legacy(col string) string {
	return fmt.Sprintf(legacyTime, col)
}

// migrationV2ToV3 turns the topic-based layout into questions and answers.
// The version-2 store had no concept graph.
var migrationV2ToV3 = ddlConcepts + ddlQuestions + `
INSERT INTO questions (id, concept_id, prompt, current_answer_id, next_review_at,
	schedule_state, difficulty, source_refs, created_at, updated_at)
SELECT id, NULL, question, current_version_id, ` + legacy("next_review_at") + `,
	schedule_state, json_extract(metadata, '$.difficulty'),
	COALESCE(json_extract(metadata, '$.source_refs'), '[]'),
	` + legacy("created_at") + `, ` + legacy("updated_at") + `
FROM topics;

INSERT INTO answers (id, question_id, raw_notes, simple_explanation, gaps_questions,
	final_explanation, analogies_examples, created_at)
SELECT id, topic_id, raw_notes, simple_explanation, gaps_questions,
	final_explanation, analogies_examples, ` + legacy("created_at") + `
FROM topic_versions;
` + fmt.Sprintf(ddlReviews, "reviews_v3") + `
INSERT INTO reviews_v3 (id, question_id, answer_id, scheduled_for, completed_at,
	status, self_grade, attempted_explanation, recalled_from_memory,
	gaps_identified, notes, ai_session_id)
SELECT id, topic_id, version_id, ` + legacy("scheduled_for") + `, ` + legacy("completed_at") + `,
	LOWER(status), self_grade, attempted_explanation, recalled_from_memory,
	gaps_identified, notes, ai_session_id
FROM reviews;

DROP TABLE reviews;
DROP TABLE topic_versions;
DROP TABLE topics;
ALTER TABLE reviews_v3 RENAME TO reviews;
` + ddlIndexes

// Migrate brings the store to SchemaVersion. A fresh store gets the current
// layout directly; a version-2 store is converted once. Running Migrate on
// an up-to-date store is a no-op.
func (c *Client) Migrate(ctx context.Context) error {
	return c.WithTx(ctx, func(tx *Client) error {
		version, err := tx.schemaVersion(ctx)
		if err != nil {
			return err
		}

		switch {
		case version == SchemaVersion:
			return nil
		case version > SchemaVersion:
			return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
		case version == 0:
			if _, err := tx.q.ExecContext(ctx, schemaV3); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
			logger.Info("Database schema created", zap.Int("version", SchemaVersion))
		case version == 2:
			if _, err := tx.q.ExecContext(ctx, migrationV2ToV3); err != nil {
				return fmt.Errorf("failed to migrate schema from v2: %w", err)
			}
			logger.Info("Database schema migrated", zap.Int("from", 2), zap.Int("to", SchemaVersion))
		default:
			return fmt.Errorf("no migration path from schema version %d", version)
		}

		if _, err := tx.q.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("failed to reset schema version: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	})
}

// SchemaVersion reports the version recorded in the store, 0 for a store
// that has never been initialized.
func (c *Client) SchemaVersion(ctx context.Context) (int, error) {
	return c.schemaVersion(ctx)
}

func (c *Client) schemaVersion(ctx context.Context) (int, error) {
	var name string
	err := c.q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect schema: %w", err)
	}

	var version int
	err = c.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
