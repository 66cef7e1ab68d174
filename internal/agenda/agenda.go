// Package agenda answers "what should I study today".
package agenda

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/ledger"
	"github.com/torenunez/lerni/internal/metrics"
	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/logger"
)

// Cache stores JSON documents by name. GetJSON reports whether the name
// was present.
type Cache interface {
	GetJSON(ctx context.Context, name string, v any) (bool, error)
	SetJSON(ctx context.Context, name string, v any) error
}

type Agenda struct {
	ledger *ledger.Ledger
	cache  Cache
}

type Option func(*Agenda)

func WithCache(c Cache) Option {
	return func(a *Agenda) {
		a.cache = c
	}
}

func New(l *ledger.Ledger, opts ...Option) *Agenda {
	a := &Agenda{ledger: l}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary is the full agenda for one moment.
type Summary struct {
	AsOf      time.Time
	Lookahead int
	Due       []models.Question
	Upcoming  []models.Question
}

// Counts is the cacheable shape of a Summary.
type Counts struct {
	Due            int        `json:"due"`
	Upcoming       int        `json:"upcoming"`
	FirstDue       *time.Time `json:"first_due,omitempty"`
	FirstDuePrompt string     `json:"first_due_prompt,omitempty"`
}

// Today lists what is due at asOf and what becomes due within
// lookaheadDays after it.
func (a *Agenda) Today(ctx context.Context, asOf time.Time, lookaheadDays int) (*Summary, error) {
	due, err := a.ledger.Due(ctx, asOf)
	if err != nil {
		return nil, err
	}
	upcoming, err := a.ledger.DueWithin(ctx, lookaheadDays, asOf)
	if err != nil {
		return nil, err
	}

	metrics.DueQuestions.Set(float64(len(due)))
	metrics.UpcomingQuestions.Set(float64(len(upcoming)))

	return &Summary{AsOf: asOf, Lookahead: lookaheadDays, Due: due, Upcoming: upcoming}, nil
}

// Counts returns the sizes of Today's lists. With a cache configured the
// result is read through it; cache errors fall back to the database.
func (a *Agenda) Counts(ctx context.Context, asOf time.Time, lookaheadDays int) (*Counts, error) {
	key := dueKey(lookaheadDays)

	if a.cache != nil {
		var cached Counts
		found, err := a.cache.GetJSON(ctx, key, &cached)
		switch {
		case err != nil:
			logger.Warn("Failed to read due cache", zap.String("key", key), zap.Error(err))
		case found:
			metrics.CacheHits.WithLabelValues("due").Inc()
			return &cached, nil
		default:
			metrics.CacheMisses.WithLabelValues("due").Inc()
		}
	}

	s, err := a.Today(ctx, asOf, lookaheadDays)
	if err != nil {
		return nil, err
	}
	counts := s.Counts()

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, key, counts); err != nil {
			logger.Warn("Failed to write due cache", zap.String("key", key), zap.Error(err))
		}
	}
	return counts, nil
}

// Counts summarizes s.
func (s *Summary) Counts() *Counts {
	c := &Counts{Due: len(s.Due), Upcoming: len(s.Upcoming)}
	if len(s.Due) > 0 {
		c.FirstDue = s.Due[0].NextReviewAt
		c.FirstDuePrompt = s.Due[0].Prompt
	}
	return c
}

// dueKey must stay matched by the redis package's DueKeyPattern.
func dueKey(lookaheadDays int) string {
	return fmt.Sprintf("due:%d", lookaheadDays)
}
