package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/ledger"
	"github.com/torenunez/lerni/internal/review"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/internal/storage/sqlite"
)

var t0 = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

type memCache struct {
	data map[string][]byte
	gets int
	sets int
	fail bool
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) GetJSON(_ context.Context, name string, v any) (bool, error) {
	m.gets++
	if m.fail {
		return false, errors.New("cache down")
	}
	raw, ok := m.data[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memCache) SetJSON(_ context.Context, name string, v any) error {
	m.sets++
	if m.fail {
		return errors.New("cache down")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[name] = raw
	return nil
}

func (m *memCache) InvalidateDue(context.Context) error {
	m.data = map[string][]byte{}
	return nil
}

func seed(t *testing.T, inv ledger.Invalidator) (*ledger.Ledger, *review.Service) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "lerni.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	var l *ledger.Ledger
	var r *review.Service
	if inv != nil {
		l = ledger.New(store, ledger.WithInvalidator(inv))
		r = review.New(store, review.WithInvalidator(inv))
	} else {
		l = ledger.New(store)
		r = review.New(store)
	}

	for i, prompt := range []string{"Explain TCP", "Explain UDP", "Explain QUIC"} {
		_, _, err := l.CreateWithAnswer(ctx, prompt, nil, models.AnswerFields{RawNotes: "notes"}, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	return l, r
}

func TestToday(t *testing.T) {
	ctx := context.Background()
	l, r := seed(t, nil)
	a := New(l)

	all, err := l.List(ctx, models.QuestionFilter{})
	require.NoError(t, err)
	var quic *models.Question
	for i := range all {
		if all[i].Prompt == "Explain QUIC" {
			quic = &all[i]
		}
	}
	require.NotNil(t, quic)

	// A grade of 4 pushes QUIC one day out.
	_, err = r.Grade(ctx, quic.ID, models.Evidence{Grade: 4}, t0.Add(time.Hour))
	require.NoError(t, err)

	s, err := a.Today(ctx, t0.Add(2*time.Hour), 7)
	require.NoError(t, err)
	require.Len(t, s.Due, 2)
	assert.Equal(t, "Explain TCP", s.Due[0].Prompt)
	assert.Equal(t, "Explain UDP", s.Due[1].Prompt)
	require.Len(t, s.Upcoming, 1)
	assert.Equal(t, "Explain QUIC", s.Upcoming[0].Prompt)

	c := s.Counts()
	assert.Equal(t, 2, c.Due)
	assert.Equal(t, 1, c.Upcoming)
	assert.Equal(t, "Explain TCP", c.FirstDuePrompt)
	require.NotNil(t, c.FirstDue)
	assert.True(t, t0.Equal(*c.FirstDue))

	_, err = a.Today(ctx, t0, -1)
	assert.Error(t, err)
}

func TestCounts_CacheAside(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	l, r := seed(t, cache)
	a := New(l, WithCache(cache))

	c, err := a.Counts(ctx, t0.Add(time.Hour), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Due)
	assert.Equal(t, 1, cache.sets)
	assert.Contains(t, cache.data, "due:7")

	c, err = a.Counts(ctx, t0.Add(time.Hour), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Due)
	assert.Equal(t, 1, cache.sets, "second read is served from the cache")

	due, err := l.Due(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = r.Grade(ctx, due[0].ID, models.Evidence{Grade: 5}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, cache.data)

	c, err = a.Counts(ctx, t0.Add(time.Hour), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Due)
	assert.Equal(t, 1, c.Upcoming)
}

func TestCounts_CacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	cache.fail = true
	l, _ := seed(t, nil)
	a := New(l, WithCache(cache))

	c, err := a.Counts(ctx, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Due)
	assert.Equal(t, 0, c.Upcoming)
}
