// Package scheduler implements the SM-2 spaced-repetition update.
//
// Everything here is pure: callers pass the current state and the instant
// the review happened, and persist whatever comes back.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultEasiness is the easiness factor of a question that has never
	// been reviewed.
	DefaultEasiness = 2.5
	// MinEasiness is the floor applied after every update.
	MinEasiness = 1.3

	MinGrade = 0
	MaxGrade = 5
	// PassingGrade is the lowest grade that counts as a successful recall.
	PassingGrade = 3

	// MaxInterval caps the gap between reviews at roughly a century. Perfect
	// grades raise the easiness factor without bound, so the interval would
	// otherwise outgrow time.Duration and wrap to a date in the past.
	MaxInterval = 36500

	day = 24 * time.Hour
)

var ErrInvalidGrade = errors.New("invalid grade")

// State is the per-question scheduling state. It is stored as a JSON blob,
// so the field names are part of the on-disk format.
type State struct {
	EasinessFactor float64 `json:"easiness_factor"`
	Interval       int     `json:"interval"`
	Repetitions    int     `json:"repetitions"`
}

func NewState() State {
	return State{EasinessFactor: DefaultEasiness}
}

// Result is the outcome of one review.
type Result struct {
	State      State
	NextReview time.Time
}

// Advance applies a recall grade in [0,5] to st. The easiness factor is
// updated for every grade; a grade below PassingGrade resets the repetition
// count and schedules the question for the next day. Intervals never exceed
// MaxInterval.
func Advance(grade int, st State, asOf time.Time) (Result, error) {
	if grade < MinGrade || grade > MaxGrade {
		return Result{}, fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidGrade, grade, MinGrade, MaxGrade)
	}

	q := float64(MaxGrade - grade)
	ef := st.EasinessFactor + (0.1 - q*(0.08+q*0.02))
	if ef < MinEasiness {
		ef = MinEasiness
	}

	next := State{EasinessFactor: ef}
	switch {
	case grade < PassingGrade:
		next.Repetitions = 0
		next.Interval = 1
	case st.Repetitions == 0:
		next.Repetitions = 1
		next.Interval = 1
	case st.Repetitions == 1:
		next.Repetitions = 2
		next.Interval = 6
	default:
		next.Repetitions = st.Repetitions + 1
		next.Interval = MaxInterval
		if iv := math.RoundToEven(float64(st.Interval) * ef); iv < MaxInterval {
			next.Interval = int(iv)
		}
	}

	return Result{
		State:      next,
		NextReview: asOf.Add(time.Duration(next.Interval) * day),
	}, nil
}

// ValidGrade reports whether grade is on the SM-2 scale.
func ValidGrade(grade int) bool {
	return grade >= MinGrade && grade <= MaxGrade
}
