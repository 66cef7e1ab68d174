// Package metrics holds the process counters. lerni is a short-lived
// command, so instead of serving /metrics it writes the registry to a
// node-exporter textfile when the command finishes.
package metrics

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	ReviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lerni_reviews_total",
			Help: "Reviews closed, by outcome",
		},
		[]string{"outcome"},
	)

	GradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lerni_grades_total",
			Help: "Self-assessed recall grades",
		},
		[]string{"grade"},
	)

	EasinessFactor = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lerni_easiness_factor",
			Help:    "Easiness factor after each graded review",
			Buckets: []float64{1.3, 1.5, 1.7, 1.9, 2.1, 2.3, 2.5, 2.7, 3.0},
		},
	)

	QuestionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lerni_questions_created_total",
			Help: "Questions created",
		},
	)

	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lerni_answer_snapshots_total",
			Help: "Answer versions recorded",
		},
	)

	DueQuestions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lerni_due_questions",
			Help: "Questions due at the last agenda check",
		},
	)

	UpcomingQuestions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lerni_upcoming_questions",
			Help: "Questions becoming due within the lookahead window",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lerni_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lerni_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		Registry.MustRegister(ReviewsTotal)
		Registry.MustRegister(GradesTotal)
		Registry.MustRegister(EasinessFactor)
		Registry.MustRegister(QuestionsCreated)
		Registry.MustRegister(SnapshotsTotal)
		Registry.MustRegister(DueQuestions)
		Registry.MustRegister(UpcomingQuestions)
		Registry.MustRegister(CacheHits)
		Registry.MustRegister(CacheMisses)
	})
}

// ObserveGrade records a completed review.
func ObserveGrade(grade int, easiness float64) {
	ReviewsTotal.WithLabelValues("completed").Inc()
	GradesTotal.WithLabelValues(strconv.Itoa(grade)).Inc()
	EasinessFactor.Observe(easiness)
}

func ObserveSkip() {
	ReviewsTotal.WithLabelValues("skipped").Inc()
}

// WriteTextfile atomically replaces path with the current registry
// contents in the text exposition format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
