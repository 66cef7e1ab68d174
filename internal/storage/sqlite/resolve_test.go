package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torenunez/lerni/internal/storage/models"
)

func TestResolveQuestion(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	mustQuestion(t, c, id("abc00001"), "first", at(0))
	mustQuestion(t, c, id("abc00002"), "second", at(0))
	mustQuestion(t, c, id("def00001"), "third", at(0))

	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantErr error
	}{
		{"exact id", id("abc00001"), id("abc00001"), nil},
		{"unique prefix", "def", id("def00001"), nil},
		{"longer unique prefix", "abc00002", id("abc00002"), nil},
		{"uppercase prefix", "DEF0", id("def00001"), nil},
		{"ambiguous prefix", "abc", "", models.ErrAmbiguousReference},
		{"no match", "fff", "", models.ErrNotFound},
		{"full length miss", id("fff00001"), "", models.ErrNotFound},
		{"empty", "  ", "", models.ErrNotFound},
		{"wildcards are literal", "%", "", models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.ResolveQuestion(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, q)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, q.ID)
		})
	}
}

func TestResolveQuestion_AmbiguityCarriesContext(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	mustQuestion(t, c, id("abc00001"), "first", at(0))
	mustQuestion(t, c, id("abc00002"), "second", at(0))

	_, err := c.ResolveQuestion(ctx, "ab")

	var lookup *models.LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, "question", lookup.Entity)
	assert.Equal(t, "ab", lookup.Ref)
	assert.Equal(t, 2, lookup.Matches)
	assert.True(t, strings.Contains(err.Error(), `"ab"`))
}

func TestResolveConcept_NameFallback(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	mustConcept(t, c, id("abc00001"), "Python")
	mustConcept(t, c, id("abc00002"), "Rust")

	got, err := c.ResolveConcept(ctx, "python")
	require.NoError(t, err)
	assert.Equal(t, id("abc00001"), got.ID)

	got, err = c.ResolveConcept(ctx, "abc00002")
	require.NoError(t, err)
	assert.Equal(t, "Rust", got.Name)

	_, err = c.ResolveConcept(ctx, "abc")
	assert.ErrorIs(t, err, models.ErrAmbiguousReference)

	_, err = c.ResolveConcept(ctx, "Haskell")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveConcept_NameThatLooksLikePrefix(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	mustConcept(t, c, id("abc00001"), "Graphs")
	mustConcept(t, c, id("fed00001"), "cafe")

	got, err := c.ResolveConcept(ctx, "cafe")
	require.NoError(t, err)
	assert.Equal(t, id("fed00001"), got.ID)
}
